package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/and161185/medrec/internal/model"
)

type diagnosisFlags struct {
	text, date, description string
}

func (f *diagnosisFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.text, "text", "", "diagnosis")
	fs.StringVar(&f.date, "date", "", "diagnosis date, YYYY-MM-DD")
	fs.StringVar(&f.description, "description", "", "description")
}

func (f *diagnosisFlags) apply(fs *pflag.FlagSet, d *model.DiagnosisDraft) error {
	if fs.Changed("text") {
		d.Text = f.text
	}
	if fs.Changed("date") {
		date, err := model.ParseDate(f.date)
		if err != nil {
			return err
		}
		d.Date = date
	}
	if fs.Changed("description") {
		d.Description = f.description
	}
	return nil
}

func (c *cli) diagnosesCmd() *cobra.Command {
	var patientID int64
	cmd := &cobra.Command{
		Use:   "diagnoses",
		Short: "Manage the diagnoses of a patient",
	}
	cmd.PersistentFlags().Int64Var(&patientID, "patient", 0, "patient id")
	_ = cmd.MarkPersistentFlagRequired("patient")

	// selectPatient scopes the diagnosis store to --patient.
	selectPatient := func() error {
		if patientID <= 0 {
			return fmt.Errorf("invalid --patient %d", patientID)
		}
		c.app.Diagnoses.Select(patientID)
		return nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List diagnoses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := selectPatient(); err != nil {
				return err
			}
			if err := c.app.Diagnoses.FetchAll(c.ctx); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), c.app.Diagnoses.Items())
			return nil
		},
	}

	var addFlags diagnosisFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a diagnosis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := selectPatient(); err != nil {
				return err
			}
			d := model.DiagnosisDraft{PatientID: patientID}
			if err := addFlags.apply(cmd.Flags(), &d); err != nil {
				return err
			}
			if err := c.app.Validator.Diagnosis(d); err != nil {
				return err
			}
			out, err := c.app.Diagnoses.Create(c.ctx, d)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), out)
			return nil
		},
	}
	addFlags.register(add.Flags())

	var editFlags diagnosisFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change diagnosis fields given as flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := selectPatient(); err != nil {
				return err
			}
			if err := c.app.Diagnoses.FetchAll(c.ctx); err != nil {
				return err
			}
			cur, ok := c.app.Diagnoses.Get(id)
			if !ok {
				return fmt.Errorf("diagnosis %d not found for patient %d", id, patientID)
			}
			d := cur.Draft()
			if err := editFlags.apply(cmd.Flags(), &d); err != nil {
				return err
			}
			if err := c.app.Validator.Diagnosis(d); err != nil {
				return err
			}
			upd := model.Diagnosis{ID: id, PatientID: d.PatientID, Text: d.Text, Date: d.Date, Description: d.Description}
			if err := c.app.Diagnoses.Update(c.ctx, upd); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), upd)
			return nil
		},
	}
	editFlags.register(edit.Flags())

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a diagnosis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := selectPatient(); err != nil {
				return err
			}
			if err := c.app.Diagnoses.Delete(c.ctx, id); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), map[string]any{"deleted": id})
			return nil
		},
	}

	cmd.AddCommand(list, add, edit, rm)
	return cmd
}
