// Command dhhide overlays a payload onto one EXT4 metadata niche of an
// existing image or block device.
package main

import (
	"fmt"
	"os"

	"github.com/RajeckMassa/DHEXT4/backend/file"
	"github.com/RajeckMassa/DHEXT4/hide"
	"github.com/RajeckMassa/DHEXT4/niche"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "dhhide",
		Usage: "hide a payload inside an EXT4 image's metadata slack",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filename", Aliases: []string{"f"}, Required: true, Usage: "image file or block device"},
			&cli.StringFlag{Name: "technique", Aliases: []string{"t"}, Required: true, Usage: "niche name, e.g. file_slack"},
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Required: true, Usage: "payload to hide"},
			&cli.UintFlag{Name: "inode", Usage: "target inode (file_slack, osd2, reserved_space_inode, extended_attributes, reserved_inode)"},
			&cli.UintFlag{Name: "group", Usage: "target block group (gd_reserved, growth_blocks, backup_superblock, superblock_slack, inode_bitmap, block_bitmap)"},
			&cli.BoolFlag{Name: "log", Usage: "print a line reporting what was written and where"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log at debug level"},
		},
		Action: runHide,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dhhide:", err)
		os.Exit(exitCodeFor(err))
	}
}

func runHide(c *cli.Context) error {
	log := logrus.New()
	if c.Bool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}

	tag, ok := niche.ParseTag(c.String("technique"))
	if !ok {
		return &hide.Error{Kind: niche.UnknownNiche, Err: fmt.Errorf("unknown technique %q", c.String("technique"))}
	}

	storage, err := file.OpenFromPath(c.String("filename"), false)
	if err != nil {
		return &hide.Error{Kind: niche.ImageOpenFailed, Err: err}
	}
	defer storage.Close()

	engine, err := hide.Open(storage, log)
	if err != nil {
		return err
	}

	opts := hide.Options{}
	if c.IsSet("inode") {
		n := uint32(c.Uint("inode"))
		opts.Inode = &n
	}
	if c.IsSet("group") {
		g := uint32(c.Uint("group"))
		opts.Group = &g
	}

	result, err := engine.Hide(tag, []byte(c.String("data")), opts)
	if err != nil {
		return err
	}

	if c.Bool("log") {
		fmt.Printf("wrote %d bytes at offset %d\n", result.BytesWritten, result.Offset)
	}
	return nil
}

// exitCodeFor maps a hide.Error's kind to a distinct process exit code, so
// scripted callers can branch on why a hide attempt failed without
// scraping stderr.
func exitCodeFor(err error) int {
	hideErr, ok := err.(*hide.Error)
	if !ok {
		return 1
	}
	return 10 + int(hideErr.Kind)
}
