package main

import (
	"encoding/json"
	"fmt"

	"github.com/gouffs/flashcore/blockinfo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type pageTagView struct {
	Page        int    `json:"page"`
	Dirty       uint8  `json:"dirty"`
	Valid       uint8  `json:"valid"`
	ObjectID    uint32 `json:"object_id"`
	Parent      uint32 `json:"parent"`
	PageID      uint16 `json:"page_id"`
	Length      uint16 `json:"length"`
	Checksum    uint16 `json:"checksum"`
	BlockStatus uint8  `json:"block_status"`
	CheckOK     bool   `json:"check_ok"`
	Expired     bool   `json:"expired"`
}

func newInspectCmd(logger *logrus.Logger) *cobra.Command {
	var (
		imagePath, configPath string
		block                 int
		asJSON                bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump a block's page tags via the block-info cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := openDevice(imagePath, configPath, logger)
			if err != nil {
				return errors.Wrap(err, "flashcore-emu inspect")
			}
			defer dev.Unmount()

			bi, err := dev.GetBlockInfo(block)
			if err != nil {
				return errors.Wrap(err, "flashcore-emu inspect")
			}
			defer dev.PutBlockInfo(bi)

			if err := dev.LoadBlockInfo(bi, blockinfo.All); err != nil {
				return errors.Wrap(err, "flashcore-emu inspect")
			}

			views := make([]pageTagView, len(bi.Slots))
			for p, slot := range bi.Slots {
				views[p] = pageTagView{
					Page:        p,
					Dirty:       slot.Tag.RawDirty,
					Valid:       slot.Tag.RawValid,
					ObjectID:    slot.Tag.ObjectID,
					Parent:      slot.Tag.Parent,
					PageID:      slot.Tag.PageID,
					Length:      slot.Tag.Length,
					Checksum:    slot.Tag.Checksum,
					BlockStatus: slot.BlockStatus,
					CheckOK:     slot.CheckOK,
					Expired:     slot.Expired,
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			for _, v := range views {
				fmt.Fprintf(cmd.OutOrStdout(),
					"page %3d  dirty=%d valid=%d object_id=%d parent=%d page_id=%d length=%d checksum=%04x status=%02x check_ok=%v\n",
					v.Page, v.Dirty, v.Valid, v.ObjectID, v.Parent, v.PageID, v.Length, v.Checksum, v.BlockStatus, v.CheckOK)
			}
			return nil
		},
	}
	addImageConfigFlags(cmd, &imagePath, &configPath)
	cmd.Flags().IntVar(&block, "block", 0, "block number to inspect")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of text")
	return cmd
}
