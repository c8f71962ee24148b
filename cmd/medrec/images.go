package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/medrec/internal/model"
)

type imageRow struct {
	ID         int64      `json:"image_id"`
	UploadDate model.Date `json:"upload_date"`
	Size       int        `json:"size"`
	File       string     `json:"file,omitempty"`
}

func (c *cli) imagesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "images", Short: "Manage diagnostic images"}

	var (
		listDiagnosis int64
		saveDir       string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List the images of a diagnosis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			imgs, err := c.app.Images.List(c.ctx, listDiagnosis)
			if err != nil {
				return err
			}
			// печатаем коротко, содержимое только в файлы
			rows := make([]imageRow, 0, len(imgs))
			for _, img := range imgs {
				row := imageRow{ID: img.ID, UploadDate: img.UploadDate, Size: len(img.Payload)}
				if saveDir != "" {
					row.File = filepath.Join(saveDir, fmt.Sprintf("image-%d", img.ID))
					if err := os.WriteFile(row.File, img.Payload, 0o600); err != nil {
						return err
					}
				}
				rows = append(rows, row)
			}
			printJSON(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	list.Flags().Int64Var(&listDiagnosis, "diagnosis", 0, "diagnosis id")
	list.Flags().StringVar(&saveDir, "save", "", "write image contents into this directory")
	_ = list.MarkFlagRequired("diagnosis")

	var (
		upDiagnosis int64
		upFile      string
		upDate      string
	)
	upload := &cobra.Command{
		Use:   "upload",
		Short: "Attach an image to a diagnosis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := readAll(upFile)
			if err != nil {
				return err
			}
			date := model.DateOf(time.Now())
			if upDate != "" {
				if date, err = model.ParseDate(upDate); err != nil {
					return err
				}
			}
			name := filepath.Base(upFile)
			if upFile == "-" {
				name = "image"
			}
			up := model.ImageUpload{DiagnosisID: upDiagnosis, Filename: name, Content: content, UploadDate: date}
			if err := c.app.Validator.Upload(up); err != nil {
				return err
			}
			id, err := c.app.Images.Upload(c.ctx, up)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), map[string]any{"image_id": id})
			return nil
		},
	}
	upload.Flags().Int64Var(&upDiagnosis, "diagnosis", 0, "diagnosis id")
	upload.Flags().StringVar(&upFile, "file", "", "image file (- for stdin)")
	upload.Flags().StringVar(&upDate, "date", "", "upload date, YYYY-MM-DD (default today)")
	_ = upload.MarkFlagRequired("diagnosis")
	_ = upload.MarkFlagRequired("file")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.app.Images.Delete(c.ctx, id); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), map[string]any{"deleted": id})
			return nil
		},
	}

	cmd.AddCommand(list, upload, rm)
	return cmd
}
