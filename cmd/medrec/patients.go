package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/and161185/medrec/internal/model"
	"github.com/and161185/medrec/internal/store"
)

// patientFlags are the editable patient fields.
type patientFlags struct {
	first, last, patronymic, gender, dob string
}

func (f *patientFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.first, "first", "", "first name")
	fs.StringVar(&f.last, "last", "", "last name")
	fs.StringVar(&f.patronymic, "patronymic", "", "patronymic")
	fs.StringVar(&f.gender, "gender", "", "gender: male|female (or Мужской|Женский)")
	fs.StringVar(&f.dob, "dob", "", "date of birth, YYYY-MM-DD")
}

// apply overwrites the fields of d whose flags were set.
func (f *patientFlags) apply(fs *pflag.FlagSet, d *model.PatientDraft) error {
	if fs.Changed("first") {
		d.FirstName = f.first
	}
	if fs.Changed("last") {
		d.LastName = f.last
	}
	if fs.Changed("patronymic") {
		d.Patronymic = f.patronymic
	}
	if fs.Changed("gender") {
		g, err := model.ParseGender(f.gender)
		if err != nil {
			return err
		}
		d.Gender = g
	}
	if fs.Changed("dob") {
		dob, err := model.ParseDate(f.dob)
		if err != nil {
			return err
		}
		d.DateOfBirth = dob
	}
	return nil
}

func (c *cli) patientsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "patients", Short: "Manage patients"}

	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "List patients, optionally filtered by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Patients.FetchAll(c.ctx); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), store.FilterPatients(c.app.Patients.Items(), query))
			return nil
		},
	}
	list.Flags().StringVarP(&query, "query", "q", "", "name substring")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := c.app.Patients.FetchOne(c.ctx, id)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), p)
			return nil
		},
	}

	var addFlags patientFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var d model.PatientDraft
			if err := addFlags.apply(cmd.Flags(), &d); err != nil {
				return err
			}
			if err := c.app.Validator.Patient(d); err != nil {
				return err
			}
			p, err := c.app.Patients.Create(c.ctx, d)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), p)
			return nil
		},
	}
	addFlags.register(add.Flags())

	var editFlags patientFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change patient fields given as flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := c.app.Patients.FetchOne(c.ctx, id)
			if err != nil {
				return err
			}
			d := p.Draft()
			if err := editFlags.apply(cmd.Flags(), &d); err != nil {
				return err
			}
			if err := c.app.Validator.Patient(d); err != nil {
				return err
			}
			p = model.Patient{ID: id, FirstName: d.FirstName, LastName: d.LastName, Patronymic: d.Patronymic, Gender: d.Gender, DateOfBirth: d.DateOfBirth}
			if err := c.app.Patients.Update(c.ctx, p); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), p)
			return nil
		},
	}
	editFlags.register(edit.Flags())

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.app.Patients.Delete(c.ctx, id); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), map[string]any{"deleted": id})
			return nil
		},
	}

	cmd.AddCommand(list, get, add, edit, rm)
	return cmd
}
