package cmd

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/copyengine/ceutils"
	"github.com/sarchlab/copyengine/gpu"
)

var (
	memsetSize       uint64
	memsetPattern    uint32
	memsetAperture   string
	memsetContiguous bool
	memsetRepeat     int
)

var memsetCmd = &cobra.Command{
	Use:   "memset",
	Short: "Fill memory through a copy engine and verify it.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		aperture, err := parseAperture(memsetAperture)
		if err != nil {
			return err
		}

		e, ctx := newEnv(cmd.Context())

		err = e.forEachDevice(ctx, func(ctx context.Context, dev *gpu.Device) error {
			c, err := ceutils.MakeBuilder().
				WithAllocator(dev).
				WithConfig(cfg).
				WithLogger(logrus.WithField("gpu", dev.Name())).
				Build(dev.Name() + ".CeUtils")
			if err != nil {
				return err
			}
			defer c.Destroy()

			e.watch(c)

			m, err := dev.AllocMemory(memsetSize, aperture, memsetContiguous)
			if err != nil {
				return err
			}
			defer dev.FreeMemory(m)

			var workID uint64

			for i := 0; i < memsetRepeat; i++ {
				workID, err = c.Memset(ctx, nil, ceutils.MemsetRequest{
					Dst:     m,
					Length:  m.Size,
					Pattern: memsetPattern,
				})
				if err != nil {
					return err
				}
			}

			got, err := readBack(dev, m)
			if err != nil {
				return err
			}

			var word [4]byte
			binary.LittleEndian.PutUint32(word[:], memsetPattern)

			want := bytes.Repeat(word[:], int(m.Size/4))
			if !bytes.Equal(got[:len(want)], want) {
				return fmt.Errorf("memset of %d bytes left unexpected data", m.Size)
			}

			logrus.WithFields(logrus.Fields{
				"gpu":    dev.Name(),
				"engine": c.Engine().ID,
				"workID": workID,
				"bytes":  m.Size,
			}).Info("memset verified")

			return nil
		})

		return closeEnv(e, err)
	},
}

func init() {
	rootCmd.AddCommand(memsetCmd)

	f := memsetCmd.Flags()
	f.Uint64Var(&memsetSize, "size", 1<<20, "bytes to fill, a multiple of 4")
	f.Uint32Var(&memsetPattern, "pattern", 0xA5A5A5A5, "32-bit fill pattern")
	f.StringVar(&memsetAperture, "aperture", "vidmem", "vidmem or sysmem")
	f.BoolVar(&memsetContiguous, "contiguous", false,
		"allocate physically contiguous memory")
	f.IntVar(&memsetRepeat, "repeat", 1, "number of memsets issued")
}

func closeEnv(e *env, err error) error {
	closeErr := e.close()
	if err != nil {
		return err
	}

	return closeErr
}
