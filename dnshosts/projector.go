package dnshosts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dipakchaulagain/NetAuthVPN/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/ini.v1"
	"gorm.io/gorm"
)

var (
	ErrWrite   = errors.New("hosts file write failed")
	ErrRestart = errors.New("hosts applied but resolver restart failed")
)

// Restarter restarts the resolver daemon after a projection.
type Restarter interface {
	Restart(ctx context.Context, service string) error
}

const resolverService = "dnsmasq"

// Projector regenerates the resolver hosts file from the record table. The
// file is a pure projection: every apply rewrites it in full from current
// rows, so the same rows always produce the same bytes.
type Projector struct {
	db          *gorm.DB
	restarter   Restarter
	hostsFile   string
	dnsmasqConf string
	log         *zap.Logger

	mu sync.Mutex
}

func NewProjector(db *gorm.DB, restarter Restarter, hostsFile, dnsmasqConf string, log *zap.Logger) *Projector {
	return &Projector{
		db:          db,
		restarter:   restarter,
		hostsFile:   hostsFile,
		dnsmasqConf: dnsmasqConf,
		log:         log,
	}
}

// Body renders the hosts file content for the current enabled records,
// sorted by hostname. No timestamps or other varying content; regeneration
// without row changes is byte-identical.
func (p *Projector) Body() (string, error) {
	var records []model.DNSRecord
	if err := p.db.Where("active = ? AND enabled = ?", true, true).
		Find(&records).Error; err != nil {
		return "", err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Hostname < records[j].Hostname
	})

	var b strings.Builder
	b.WriteString("# Managed VPN host records. Do not edit, rewritten on every apply.\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%s\t%s\n", r.IPAddress, r.Hostname)
	}

	return b.String(), nil
}

// Apply rewrites the hosts file and restarts the resolver. The write stages
// into the target directory and renames, so a failure partway leaves the old
// file in place and the resolver keeps serving the previous records.
func (p *Projector) Apply(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.Body()
	if err != nil {
		return err
	}

	staging := filepath.Join(filepath.Dir(p.hostsFile),
		fmt.Sprintf(".%s.%s", filepath.Base(p.hostsFile), uuid.New().String()))
	if err := os.WriteFile(staging, []byte(body), 0644); err != nil {
		return fmt.Errorf("%w: stage: %v", ErrWrite, err)
	}
	if err := os.Rename(staging, p.hostsFile); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("%w: replace: %v", ErrWrite, err)
	}

	if err := p.ensureResolverConf(); err != nil {
		return err
	}

	p.log.Info("hosts file projected", zap.String("path", p.hostsFile))

	if err := p.restarter.Restart(ctx, resolverService); err != nil {
		return fmt.Errorf("%w: %v", ErrRestart, err)
	}

	return nil
}

// ensureResolverConf keeps the dnsmasq drop-in pointing at the projected
// hosts file.
func (p *Projector) ensureResolverConf() error {
	if p.dnsmasqConf == "" {
		return nil
	}

	cfg := ini.Empty()
	if _, err := os.Stat(p.dnsmasqConf); err == nil {
		loaded, err := ini.Load(p.dnsmasqConf)
		if err != nil {
			return fmt.Errorf("%w: resolver conf: %v", ErrWrite, err)
		}
		cfg = loaded
	}

	section := cfg.Section("")
	if section.Key("addn-hosts").String() == p.hostsFile {
		return nil
	}
	section.Key("addn-hosts").SetValue(p.hostsFile)

	if err := cfg.SaveTo(p.dnsmasqConf); err != nil {
		return fmt.Errorf("%w: resolver conf: %v", ErrWrite, err)
	}

	return nil
}
