package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/internal/vision"
)

var enrollOpts struct {
	Output  string
	Replace bool
	DB      bool
}

var enrollCmd = &cobra.Command{
	Use:   "enroll <dir>",
	Short: "Enroll every person under <dir>/<person>/*.{png,jpg,jpeg}",
	Long: `Enroll reads one sub-directory per person and computes an embedding for
each image that passes the enrollment checks. Persons found in <dir> replace
their previous embeddings in the gallery snapshot; other persons are kept
unless --replace is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollOpts.Output, "output", "o", "", "gallery snapshot path (default: attendance.gallery_path)")
	enrollCmd.Flags().BoolVar(&enrollOpts.Replace, "replace", false, "discard the existing snapshot instead of merging")
	enrollCmd.Flags().BoolVar(&enrollOpts.DB, "db", false, "also store embeddings in Postgres")
	rootCmd.AddCommand(enrollCmd)
}

type enrollImage struct {
	Person string
	Path   string
}

type enrollPlan struct {
	// Persons in directory order, including those without usable images.
	Persons []string
	Images  []enrollImage
	Skipped []string
}

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// planEnrollment lists the images of each person directory under dir.
// Files at the top level and nested directories are ignored.
func planEnrollment(dir string) (*enrollPlan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read enrollment dir: %w", err)
	}

	plan := &enrollPlan{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		person := e.Name()
		plan.Persons = append(plan.Persons, person)

		files, err := os.ReadDir(filepath.Join(dir, person))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", person, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			rel := filepath.Join(person, f.Name())
			if !imageExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				plan.Skipped = append(plan.Skipped, rel)
				continue
			}
			plan.Images = append(plan.Images, enrollImage{Person: person, Path: filepath.Join(dir, rel)})
		}
	}
	if len(plan.Persons) == 0 {
		return nil, fmt.Errorf("no person directories in %s", dir)
	}
	return plan, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := enrollOpts.Output
	if out == "" {
		out = cfg.Attendance.GalleryPath
	}

	plan, err := planEnrollment(args[0])
	if err != nil {
		return err
	}

	rt, err := loadEngine()
	if err != nil {
		return err
	}
	defer rt.Close()

	gallery := vision.Gallery{}
	if !enrollOpts.Replace {
		if gallery, err = storage.LoadGallery(out); err != nil {
			return err
		}
	}

	enrolled := make(map[string][]models.FaceEmbedding, len(plan.Persons))
	var problems []string

	bar := progressbar.NewOptions(len(plan.Images),
		progressbar.OptionSetDescription("enrolling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	for _, img := range plan.Images {
		if err := ctx.Err(); err != nil {
			return err
		}
		fe, err := enrollFile(cmd, rt.Engine, img.Path)
		_ = bar.Add(1)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", img.Path, err))
			continue
		}
		enrolled[img.Person] = append(enrolled[img.Person], *fe)
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	for _, p := range problems {
		fmt.Fprintln(cmd.ErrOrStderr(), "skipped", p)
	}
	for _, s := range plan.Skipped {
		fmt.Fprintln(cmd.ErrOrStderr(), "skipped unsupported file", s)
	}

	for _, person := range plan.Persons {
		embs := make([]vision.Embedding, 0, len(enrolled[person]))
		for _, fe := range enrolled[person] {
			embs = append(embs, fe.Embedding)
		}
		gallery[person] = embs
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d embeddings\n", person, len(embs))
	}

	if err := storage.SaveGallery(out, gallery); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "gallery saved to %s (%d persons, %d embeddings)\n", out, len(gallery), gallery.Size())

	if !enrollOpts.DB {
		return nil
	}
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	for _, person := range plan.Persons {
		if len(enrolled[person]) == 0 {
			continue
		}
		if err := db.AddEmbeddings(ctx, person, enrolled[person]); err != nil {
			return fmt.Errorf("store %s: %w", person, err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "embeddings stored in postgres")
	return nil
}

func enrollFile(cmd *cobra.Command, engine *vision.Engine, path string) (*models.FaceEmbedding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	frame, err := vision.DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	emb, det, err := engine.EnrollImage(cmd.Context(), frame)
	if err != nil {
		var rej *vision.RejectionError
		if errors.As(err, &rej) {
			return nil, errors.New(rej.Message)
		}
		return nil, err
	}
	return &models.FaceEmbedding{Embedding: emb, Quality: det.Confidence}, nil
}
