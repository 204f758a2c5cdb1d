package cmd

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/copyengine/ceutils"
	"github.com/sarchlab/copyengine/gpu"
	"github.com/sarchlab/copyengine/rm"
)

var (
	memcopySize uint64
	memcopySeed uint64
)

var memcopyCmd = &cobra.Command{
	Use:   "memcopy",
	Short: "Copy random data from system memory to video memory and back.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, ctx := newEnv(cmd.Context())

		err := e.forEachDevice(ctx, func(ctx context.Context, dev *gpu.Device) error {
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

			return roundTrip(ctx, dev, c)
		})

		return closeEnv(e, err)
	},
}

func roundTrip(ctx context.Context, dev *gpu.Device, c *ceutils.CeUtils) error {
	src, err := dev.AllocMemory(memcopySize, rm.ApertureSysmem, true)
	if err != nil {
		return err
	}
	defer dev.FreeMemory(src)

	vid, err := dev.AllocMemory(memcopySize, rm.ApertureVidmem, false)
	if err != nil {
		return err
	}
	defer dev.FreeMemory(vid)

	back, err := dev.AllocMemory(memcopySize, rm.ApertureSysmem, false)
	if err != nil {
		return err
	}
	defer dev.FreeMemory(back)

	rng := rand.New(rand.NewPCG(memcopySeed, uint64(len(dev.Name()))))
	data := make([]byte, memcopySize)

	for i := range data {
		data[i] = byte(rng.Uint32())
	}

	if err := writeAll(dev, src, data); err != nil {
		return err
	}

	_, err = c.Memcopy(ctx, nil, ceutils.MemcopyRequest{
		Src: src, Dst: vid, Length: memcopySize,
		Flags: ceutils.FlagAsync | ceutils.FlagPipelined,
	})
	if err != nil {
		return err
	}

	workID, err := c.Memcopy(ctx, nil, ceutils.MemcopyRequest{
		Src: vid, Dst: back, Length: memcopySize,
	})
	if err != nil {
		return err
	}

	got, err := readBack(dev, back)
	if err != nil {
		return err
	}

	if !bytes.Equal(got, data) {
		return fmt.Errorf("round trip of %d bytes corrupted data", memcopySize)
	}

	logrus.WithFields(logrus.Fields{
		"gpu":    dev.Name(),
		"engine": c.Engine().ID,
		"workID": workID,
		"bytes":  memcopySize,
	}).Info("memcopy verified")

	return nil
}

func init() {
	rootCmd.AddCommand(memcopyCmd)

	f := memcopyCmd.Flags()
	f.Uint64Var(&memcopySize, "size", 1<<20, "bytes to copy")
	f.Uint64Var(&memcopySeed, "seed", 1, "seed of the copied data")
}
