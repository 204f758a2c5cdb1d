package cmd

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/copyengine/gpu"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/scrub"
)

var (
	scrubPages uint64
	scrubBatch int
)

var scrubCmd = &cobra.Command{
	Use:   "scrub",
	Short: "Dirty video memory pages and scrub them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if scrubBatch <= 0 {
			return fmt.Errorf("batch must be positive, got %d", scrubBatch)
		}

		e, ctx := newEnv(cmd.Context())

		err := e.forEachDevice(ctx, func(ctx context.Context, dev *gpu.Device) error {
			s, err := scrub.MakeBuilder().
				WithAllocator(dev).
				WithConfig(cfg).
				WithLogger(logrus.WithField("gpu", dev.Name())).
				WithMonitor(e.monitor).
				Build(dev.Name() + ".Scrubber")
			if err != nil {
				return err
			}
			defer s.Destroy(ctx)

			if w, ok := s.Submitter().(watchable); ok {
				e.watch(w)
			}

			return scrubAll(ctx, dev, s)
		})

		return closeEnv(e, err)
	},
}

func scrubAll(ctx context.Context, dev *gpu.Device, s *scrub.Scrubber) error {
	m, err := dev.AllocMemory(scrubPages*rm.PageSize, rm.ApertureVidmem, false)
	if err != nil {
		return err
	}
	defer dev.FreeMemory(m)

	dirty := bytes.Repeat([]byte{0xDE, 0xAD}, int(rm.PageSize/2))
	for _, p := range m.Pages {
		if err := dev.Storage(rm.ApertureVidmem).Write(p, dirty); err != nil {
			return err
		}
	}

	var scrubbed uint64

	for start := 0; start < len(m.Pages); start += scrubBatch {
		end := min(start+scrubBatch, len(m.Pages))

		done, _, err := s.SubmitPages(ctx, m.Pages[start:end], rm.PageSize)
		if err != nil {
			return err
		}

		for _, item := range done {
			scrubbed += item.Size
		}
	}

	for s.Pending() > 0 {
		done, err := s.CheckAndWaitForSize(ctx, s.Pending(), rm.PageSize)
		if err != nil {
			return err
		}

		for _, item := range done {
			scrubbed += item.Size
		}
	}

	got, err := readBack(dev, m)
	if err != nil {
		return err
	}

	if !bytes.Equal(got, make([]byte, m.Size)) {
		return fmt.Errorf("%d pages were not scrubbed", scrubPages)
	}

	logrus.WithFields(logrus.Fields{
		"gpu":   dev.Name(),
		"bytes": scrubbed,
	}).Info("scrub verified")

	return nil
}

func init() {
	rootCmd.AddCommand(scrubCmd)

	f := scrubCmd.Flags()
	f.Uint64Var(&scrubPages, "pages", 1024, "pages to dirty and scrub")
	f.IntVar(&scrubBatch, "batch", 256, "pages per SubmitPages call")
}
