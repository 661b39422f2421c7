package core_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxer/core"
	"boxer/utils/unittest"
)

func TestDirImporter(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	dir := filepath.Join(t.TempDir(), "blocks")
	importer, err := core.NewDirImporter(dir, chain.Service, unittest.Logger())
	require.NoError(t, err)

	blocks := chain.MineChain(t, chain.Miner(unittest.Address(t)), 3)

	// the child arrives first and waits for its parent
	_, err = importer.Export(blocks[1])
	require.NoError(t, err)
	assert.Equal(t, 0, importer.ImportOnce())
	assert.Len(t, blockFiles(t, dir), 1)

	_, err = importer.Export(blocks[0])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.blk"), []byte{0x01, 0x02}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	assert.Equal(t, 2, importer.ImportOnce())
	assert.Empty(t, blockFiles(t, dir), "imported and corrupt files are removed")
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.Equal(t, blocks[1].Hash(), chain.Shared.Snapshot().TipHash())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		importer.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	_, err = importer.Export(blocks[2])
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return chain.Shared.Snapshot().TipHash() == blocks[2].Hash()
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	unittest.RequireClosedBefore(t, done, time.Second, "importer should stop with its context")
}

func TestDirImporterDropsInvalidBlocks(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	dir := t.TempDir()
	importer, err := core.NewDirImporter(dir, chain.Service, unittest.Logger())
	require.NoError(t, err)

	blk := chain.MineChain(t, chain.Miner(unittest.Address(t)), 1)[0]
	blk.Transactions[0].Amount++
	_, err = importer.Export(blk)
	require.NoError(t, err)

	assert.Equal(t, 0, importer.ImportOnce())
	assert.Empty(t, blockFiles(t, dir))
	assert.Equal(t, uint64(0), chain.Shared.Snapshot().TipHeader().Number)
}

func blockFiles(t *testing.T, dir string) []string {
	files, err := filepath.Glob(filepath.Join(dir, "*.blk"))
	require.NoError(t, err)
	return files
}
