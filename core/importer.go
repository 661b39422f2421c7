package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const blockFileExt = ".blk"

// BlockProcessor accepts verified blocks. ChainService implements it.
type BlockProcessor interface {
	ProcessBlock(block *BlockView) (bool, error)
}

// DirImporter exchanges raw block files through a directory. Other local
// processes drop blocks there; the importer feeds them to the chain.
type DirImporter struct {
	dir   string
	chain BlockProcessor
	log   zerolog.Logger
}

// NewDirImporter creates dir if needed.
func NewDirImporter(dir string, chain BlockProcessor, log zerolog.Logger) (*DirImporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create import dir: %w", err)
	}
	return &DirImporter{
		dir:   dir,
		chain: chain,
		log:   log.With().Str("component", "importer").Str("dir", dir).Logger(),
	}, nil
}

// Export writes block to the directory. The file appears atomically.
func (d *DirImporter) Export(block *Block) (string, error) {
	data, err := block.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode block: %w", err)
	}
	name := fmt.Sprintf("block_%012d_%d%s", block.Header.Number, time.Now().UnixNano(), blockFileExt)
	path := filepath.Join(d.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write block file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to publish block file: %w", err)
	}
	d.log.Debug().Uint64("number", block.Header.Number).Str("file", name).Msg("block exported")
	return path, nil
}

// ImportOnce scans the directory in name order and returns how many blocks
// were handed to the chain successfully. Files whose parent is still unknown
// stay for the next scan; every other file is removed.
func (d *DirImporter) ImportOnce() int {
	files, err := os.ReadDir(d.dir)
	if err != nil {
		d.log.Warn().Err(err).Msg("failed to list import dir")
		return 0
	}

	imported := 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != blockFileExt {
			continue
		}
		path := filepath.Join(d.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			d.log.Warn().Err(err).Str("file", file.Name()).Msg("failed to read block file")
			continue
		}

		r, err := VerifyBlock(data)
		if err != nil {
			d.log.Error().Err(err).Str("file", file.Name()).Msg("corrupt block file removed")
			d.remove(path)
			continue
		}
		if _, err := d.chain.ProcessBlock(r.View()); err != nil {
			if errors.Is(err, ErrUnknownParent) {
				continue
			}
			d.log.Error().Err(err).Str("file", file.Name()).Msg("block file rejected")
			d.remove(path)
			continue
		}
		imported++
		d.remove(path)
	}
	return imported
}

func (d *DirImporter) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("failed to remove block file")
	}
}

// Run scans every interval until ctx ends.
func (d *DirImporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.ImportOnce(); n > 0 {
				d.log.Info().Int("blocks", n).Msg("imported blocks")
			}
		}
	}
}
