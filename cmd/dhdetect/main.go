// Command dhdetect scans an EXT4 image for metadata niches holding more
// than their expected idle fill, optionally searching for known payloads.
package main

import (
	"fmt"
	"os"

	"github.com/RajeckMassa/DHEXT4/backend/file"
	"github.com/RajeckMassa/DHEXT4/detect"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "dhdetect",
		Usage: "scan an EXT4 image for hidden data in metadata slack",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filename", Aliases: []string{"f"}, Required: true, Usage: "image file or block device"},
			&cli.StringSliceFlag{Name: "string", Aliases: []string{"s"}, Usage: "payload pattern to search for; may be repeated"},
			&cli.BoolFlag{Name: "log", Usage: "print the report; with no --log, the scan runs but nothing is printed"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log at debug level"},
		},
		Action: runDetect,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dhdetect:", err)
		os.Exit(1)
	}
}

func runDetect(c *cli.Context) error {
	log := logrus.New()
	if c.Bool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}

	storage, err := file.OpenFromPath(c.String("filename"), true)
	if err != nil {
		return err
	}
	defer storage.Close()

	engine, err := detect.Open(storage, log)
	if err != nil {
		return err
	}

	var patterns [][]byte
	for _, s := range c.StringSlice("string") {
		patterns = append(patterns, []byte(s))
	}

	report, err := engine.Scan(patterns)
	if err != nil {
		return err
	}

	if !c.Bool("log") {
		return nil
	}

	if len(report.Incidents) == 0 {
		fmt.Println("no incidents found")
		return nil
	}

	for _, inc := range report.Incidents {
		location := "image"
		if inc.InodeNumber != detect.NoInode {
			location = fmt.Sprintf("inode %d", inc.InodeNumber)
		}
		matched := ""
		if inc.MatchedPayload {
			matched = " (matched search pattern)"
		}
		fmt.Printf("%-22s %-12s %s%s\n", inc.NicheTag, location, inc.Message, matched)
	}
	fmt.Printf("\n%d incident(s) across %d technique(s)\n", len(report.Incidents), len(report.TechniquesSeen))
	return nil
}
