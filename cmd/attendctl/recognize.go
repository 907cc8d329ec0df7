package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/internal/vision"
)

var recognizeOpts struct {
	Gallery string
	Mark    bool
}

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize the face in one image against the gallery snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecognize,
}

func init() {
	recognizeCmd.Flags().StringVarP(&recognizeOpts.Gallery, "gallery", "g", "", "gallery snapshot path (default: attendance.gallery_path)")
	recognizeCmd.Flags().BoolVar(&recognizeOpts.Mark, "mark", false, "append a recognized person to the attendance ledger")
	rootCmd.AddCommand(recognizeCmd)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	path := recognizeOpts.Gallery
	if path == "" {
		path = cfg.Attendance.GalleryPath
	}
	gallery, err := storage.LoadGallery(path)
	if err != nil {
		return err
	}
	if gallery.Size() == 0 {
		return fmt.Errorf("gallery %s is empty, run enroll first", path)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	frame, err := vision.DecodeFrame(data)
	if err != nil {
		return err
	}

	rt, err := loadEngine()
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.Engine.Recognize(cmd.Context(), frame, gallery)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !rec.Found {
		fmt.Fprintln(out, "No face detected in the image")
		return nil
	}

	printMatch(out, rec.Match)

	if !recognizeOpts.Mark || !rec.Match.Known() {
		return nil
	}
	ledger, err := attendance.NewLedger(cfg.Attendance.LedgerPath)
	if err != nil {
		return err
	}
	err = ledger.Append(cmd.Context(), models.AttendanceRecord{
		ID:         uuid.New(),
		PersonName: rec.Match.Name,
		Confidence: rec.Match.Similarity,
		MarkedAt:   time.Now(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "marked %s in %s\n", rec.Match.Name, ledger.Path())
	return nil
}

// printMatch writes the decision followed by every person's score, best first.
func printMatch(w io.Writer, m vision.MatchResult) {
	fmt.Fprintf(w, "recognized: %s (similarity %.4f)\n", m.Name, m.Similarity)

	names := make([]string, 0, len(m.All))
	for name := range m.All {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if m.All[names[i]] != m.All[names[j]] {
			return m.All[names[i]] > m.All[names[j]]
		}
		return names[i] < names[j]
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERSON\tSIMILARITY")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%.4f\n", name, m.All[name])
	}
	_ = tw.Flush()
}
