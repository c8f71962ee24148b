package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// imageSource selects the input of classify and segment: a local file or a stored image.
type imageSource struct {
	file        string
	imageID     int64
	diagnosisID int64
}

func (c *cli) loadImage(src imageSource) ([]byte, error) {
	switch {
	case src.file != "" && src.imageID != 0:
		return nil, errors.New("use either --file or --image")
	case src.file != "":
		return readAll(src.file)
	case src.imageID != 0:
		if src.diagnosisID == 0 {
			return nil, errors.New("--image needs --diagnosis")
		}
		imgs, err := c.app.Images.List(c.ctx, src.diagnosisID)
		if err != nil {
			return nil, err
		}
		for _, img := range imgs {
			if img.ID == src.imageID {
				return img.Payload, nil
			}
		}
		return nil, fmt.Errorf("image %d not found for diagnosis %d", src.imageID, src.diagnosisID)
	}
	return nil, errors.New("need --file or --image")
}

// computeCmd builds classify or segment; both print the result and can save the returned PNG.
func (c *cli) computeCmd(name, short string) *cobra.Command {
	var (
		src imageSource
		out string
	)
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := c.loadImage(src)
			if err != nil {
				return err
			}

			// png is the base64 image in the result; view is what gets printed
			var (
				png  string
				view func(saved string) any
			)
			if name == "classify" {
				r, err := c.app.Classifier.Resolve(c.ctx, content)
				if err != nil {
					return err
				}
				png = r.ProbabilitiesGraph
				view = func(saved string) any {
					if saved == "" {
						return r
					}
					return map[string]any{"diagnosis": r.Diagnosis, "probabilities_graph_file": saved}
				}
			} else {
				r, err := c.app.Segmenter.Resolve(c.ctx, content)
				if err != nil {
					return err
				}
				png = r.Image
				view = func(saved string) any {
					if saved == "" {
						return r
					}
					return map[string]any{"segmented_image_file": saved}
				}
			}

			if out != "" {
				b, err := base64.StdEncoding.DecodeString(png)
				if err != nil {
					return fmt.Errorf("decode %s image: %w", name, err)
				}
				if err := os.WriteFile(out, b, 0o600); err != nil {
					return err
				}
			}
			printJSON(cmd.OutOrStdout(), view(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&src.file, "file", "", "image file (- for stdin)")
	cmd.Flags().Int64Var(&src.imageID, "image", 0, "stored image id")
	cmd.Flags().Int64Var(&src.diagnosisID, "diagnosis", 0, "diagnosis the stored image belongs to")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the returned PNG to this file")
	return cmd
}
