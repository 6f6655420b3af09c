// Package discovery enumerates candidate plug-in containers on disk. It
// never spawns a worker and never opens a container; full metadata is
// only available once a session is loaded from one of its results.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// ContainerExtension is the directory-name suffix that marks a plug-in
// container. A directory matching it is reported as one hit and never
// descended into.
const ContainerExtension = ".vst3"

// DefaultCategory is the placeholder category stamped on every stub
// descriptor; real metadata is only known once a session is loaded.
const DefaultCategory = "Effect"

// UnknownVendor is the placeholder vendor stamped on every stub
// descriptor.
const UnknownVendor = "Unknown"

// Descriptor is the stub metadata the scanner can produce without
// spawning a worker: everything derivable from the filesystem alone.
type Descriptor struct {
	Name     string
	Vendor   string
	Category string
	Path     string
	UID      string
}

// DefaultRoots returns the two conventional subpaths the scanner walks by
// default, rooted at the given compatibility-runtime prefix (a WINEPREFIX
// or equivalent).
func DefaultRoots(prefix string) []string {
	return []string{
		filepath.Join(prefix, "drive_c", "Program Files", "Common Files", "VST3"),
		filepath.Join(prefix, "drive_c", "Program Files (x86)", "Common Files", "VST3"),
	}
}

// Scanner walks filesystem roots looking for plug-in containers.
type Scanner struct {
	Roots  []string
	Logger *log.Logger

	responder *dnssd.Responder
}

// New builds a Scanner over roots, logging through logger (log.Default()
// if nil).
func New(roots []string, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.Default()
	}

	return &Scanner{Roots: roots, Logger: logger}
}

// Scan walks every configured root and returns one Descriptor per
// container found. An unreadable directory is skipped and logged, not
// fatal to the overall scan.
func (s *Scanner) Scan() []Descriptor {
	var found []Descriptor
	for _, root := range s.Roots {
		found = append(found, s.ScanRoot(root)...)
	}

	return found
}

// ScanRoot walks a single root directory recursively. A directory whose
// name ends in ContainerExtension is reported as a hit and not descended
// into; everything else is recursed into normally.
func (s *Scanner) ScanRoot(root string) []Descriptor {
	var found []Descriptor

	var walkErr = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			s.Logger.Warn("discovery: skipping unreadable entry", "path", path, "err", err)
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && strings.HasSuffix(d.Name(), ContainerExtension) {
			found = append(found, stubDescriptor(path))
			return filepath.SkipDir
		}

		return nil
	})
	if walkErr != nil {
		s.Logger.Warn("discovery: walk failed", "root", root, "err", walkErr)
	}

	return found
}

func stubDescriptor(path string) Descriptor {
	var base = filepath.Base(path)
	var name = strings.TrimSuffix(base, ContainerExtension)

	return Descriptor{
		Name:     name,
		Vendor:   UnknownVendor,
		Category: DefaultCategory,
		Path:     path,
		UID:      name,
	}
}

// Announce advertises this scanner's host as a rack-wine bridge instance
// on the local network via DNS-SD, so LAN-side tooling can find a running
// bridge without being told its address. It blocks responding to queries
// until ctx is cancelled; callers run it in a goroutine. Announcement is
// an additive convenience, off by default and never required by any
// discovery invariant.
func (s *Scanner) Announce(ctx context.Context, port int) error {
	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: "rack-wine-bridge",
		Type: "_rackwine-bridge._tcp",
		Port: port,
	}

	var svc, svcErr = dnssd.NewService(cfg)
	if svcErr != nil {
		return svcErr
	}

	var responder, responderErr = dnssd.NewResponder()
	if responderErr != nil {
		return responderErr
	}

	var _, addErr = responder.Add(svc)
	if addErr != nil {
		return addErr
	}

	s.responder = responder

	return responder.Respond(ctx)
}
