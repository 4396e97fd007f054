// Package hide drives the Locator to overlay a caller-supplied payload
// onto exactly one EXT4 metadata niche.
package hide

import (
	"fmt"
	"math/rand"

	"github.com/RajeckMassa/DHEXT4/backend"
	"github.com/RajeckMassa/DHEXT4/niche"
	"github.com/RajeckMassa/DHEXT4/volume"
	"github.com/sirupsen/logrus"
)

// Error wraps a terminal hide failure with its kind, for callers (like the
// CLI) that want to map it to a specific exit code.
type Error struct {
	Kind niche.ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind niche.ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Options customizes one Hide invocation. Inode and Group are nil for
// "use the default" (a uniformly random inode, inode 10 for
// reserved_inode, and group 3).
type Options struct {
	Inode *uint32
	Group *uint32
	// Rand drives the default-inode draw; nil uses math/rand's top-level
	// source. Inject a seeded *rand.Rand for reproducible tests.
	Rand *rand.Rand
}

// Result reports where a Hide call wrote its payload.
type Result struct {
	BytesWritten int
	Offset       int64
}

const defaultGroup = 3

// Engine opens one EXT4 image and hides payloads into its niches.
type Engine struct {
	vol     *volume.Volume
	storage backend.WritableFile
	log     *logrus.Entry
}

// Open parses storage's superblock and group descriptors and returns an
// Engine ready to hide into it. storage must have been opened for
// read-write.
func Open(storage backend.Storage, log *logrus.Logger) (*Engine, error) {
	writable, err := storage.Writable()
	if err != nil {
		return nil, wrap(niche.ImageOpenFailed, err)
	}
	vol, err := volume.Open(storage)
	if err != nil {
		return nil, wrap(niche.ImageOpenFailed, err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{vol: vol, storage: writable, log: log.WithField("component", "hide")}, nil
}

// Hide writes payload into tag's niche, returning the number of bytes
// written and the absolute offset they landed at.
func (e *Engine) Hide(tag niche.Tag, payload []byte, opts Options) (Result, error) {
	params := e.vol.Params()

	group := defaultGroup
	if opts.Group != nil {
		group = int(*opts.Group)
	}

	var inode volume.Inode
	switch {
	case tag == niche.ReservedInode:
		n, err := e.reservedInodeNumber(opts)
		if err != nil {
			return Result{}, err
		}
		if inode, err = e.vol.GetInode(n); err != nil {
			return Result{}, wrap(niche.MissingRequiredInput, err)
		}
	case requiresInode(tag):
		n, err := e.resolveInode(opts)
		if err != nil {
			return Result{}, err
		}
		if inode, err = e.vol.GetInode(n); err != nil {
			return Result{}, wrap(niche.MissingRequiredInput, err)
		}
	}

	sel := niche.Selector{Group: uint32(group), Inode: inode}

	loc, err := niche.Locate(tag, params, sel)
	if err != nil {
		kind, _ := niche.Kind(err)
		e.log.WithField("niche", tag).WithError(err).Debug("niche not feasible")
		return Result{}, wrap(kind, err)
	}

	if int64(len(payload)) > loc.TotalLength() {
		return Result{}, wrap(niche.PayloadTooLarge, fmt.Errorf("payload is %d bytes, niche holds %d", len(payload), loc.TotalLength()))
	}

	n, offset, err := writeScattered(e.storage, loc, payload)
	if err != nil {
		return Result{}, wrap(niche.ImageOpenFailed, err)
	}

	e.log.WithFields(logrus.Fields{
		"niche":  tag,
		"offset": offset,
		"bytes":  n,
	}).Info("hid payload")

	return Result{BytesWritten: n, Offset: offset}, nil
}

// requiresInode reports whether tag's Location formula needs a resolved
// inode (as opposed to only a group number, or nothing at all).
func requiresInode(tag niche.Tag) bool {
	switch tag {
	case niche.ReservedSpaceInode, niche.OSD2, niche.ExtendedAttributes, niche.FileSlack:
		return true
	default:
		return false
	}
}

// resolveInode returns the caller-chosen inode, or draws one uniformly
// from [1, inodes_count] when none was given.
func (e *Engine) resolveInode(opts Options) (uint32, error) {
	if opts.Inode != nil {
		return *opts.Inode, nil
	}
	count := e.vol.InodesCount()
	if count == 0 {
		return 0, wrap(niche.MissingRequiredInput, fmt.Errorf("volume has no inodes"))
	}
	if opts.Rand != nil {
		return uint32(opts.Rand.Intn(int(count))) + 1, nil
	}
	return uint32(rand.Intn(int(count))) + 1, nil
}

// reservedInodeNumber picks which of EXT4's two conventionally-reserved
// inodes (9, 10) a reserved_inode hide targets: the caller's --inode if
// it is one of the two, otherwise 10 (the ACL inode, historically the
// less frequently populated of the pair).
func (e *Engine) reservedInodeNumber(opts Options) (uint32, error) {
	if opts.Inode != nil && (*opts.Inode == 9 || *opts.Inode == 10) {
		return *opts.Inode, nil
	}
	return 10, nil
}

// writeScattered writes payload across loc's run(s) in order, honoring the
// gap a split location (reserved_inode) leaves around its checksum field.
func writeScattered(w backend.WritableFile, loc niche.Location, payload []byte) (int, int64, error) {
	firstOffset := loc.Offset
	n1 := len(payload)
	if int64(n1) > loc.Length {
		n1 = int(loc.Length)
	}
	written := 0
	if n1 > 0 {
		wn, err := w.WriteAt(payload[:n1], loc.Offset)
		if err != nil {
			return written, firstOffset, err
		}
		written += wn
	}
	remaining := payload[n1:]
	if len(remaining) > 0 && loc.Second != nil {
		wn, err := w.WriteAt(remaining, loc.Second.Offset)
		if err != nil {
			return written, firstOffset, err
		}
		written += wn
	}
	return written, firstOffset, nil
}
