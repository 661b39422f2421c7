package main

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"boxer/boxer"
	"boxer/core"
	"boxer/miner"
)

var (
	flagMineCount    int
	flagMineCoinbase string
	flagMinePrivKey  string
	flagMineTo       string
	flagMineAmount   uint64
	flagMineOutDir   string
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine blocks on the local tip and print them as NBLK frames",
	Long: `Mine blocks on top of the local tip without storing them. Each block is
printed as one NBLK frame, ready to pipe into "boxer run", or written as a raw
block file into --out-dir for a driver started with --import-dir.

The store under --data-dir is opened read-only and must already hold a chain.
Badger locks the directory while mining, so mine cannot share a --data-dir
with a running driver: mine first and start the driver afterwards, or feed a
driver that uses another data dir. Without --data-dir mining starts at genesis.`,
	RunE: runMine,
}

func init() {
	mineCmd.Flags().IntVarP(&flagMineCount, "count", "n", 1, "number of blocks")
	mineCmd.Flags().StringVar(&flagMineCoinbase, "coinbase", "", "reward address (hex)")
	mineCmd.Flags().StringVar(&flagMinePrivKey, "privkey", "", "sign a transfer in the first block with this key (hex)")
	mineCmd.Flags().StringVar(&flagMineTo, "to", "", "transfer recipient (hex)")
	mineCmd.Flags().Uint64Var(&flagMineAmount, "amount", 0, "transfer amount")
	mineCmd.Flags().StringVar(&flagMineOutDir, "out-dir", "", "write raw block files here instead of printing frames")
}

func runMine(cmd *cobra.Command, _ []string) error {
	if flagMineCount < 0 {
		return fmt.Errorf("count must not be negative, got %d", flagMineCount)
	}
	coinbase, err := parseAddress(flagMineCoinbase)
	if err != nil {
		return fmt.Errorf("coinbase: %w", err)
	}
	consensus, err := consensusFromConfig()
	if err != nil {
		return err
	}
	node, err := boxer.OpenNode(boxer.NodeConfig{
		DataDir:   viper.GetString("data-dir"),
		Consensus: consensus,
		ReadOnly:  true,
	}, log)
	if err != nil {
		return err
	}
	defer node.Close()

	var txs []*core.Transaction
	if flagMinePrivKey != "" {
		tx, err := signedTransfer(node.Store)
		if err != nil {
			return err
		}
		txs = append(txs, tx)
	}

	blocks, err := miner.New(consensus, coinbase, log).MineChain(cmd.Context(), node.Shared.Snapshot(), flagMineCount, txs)
	if err != nil {
		return err
	}

	if flagMineOutDir != "" {
		exporter, err := core.NewDirImporter(flagMineOutDir, node.Chain, log)
		if err != nil {
			return err
		}
		for _, blk := range blocks {
			path, err := exporter.Export(blk)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	}

	out := boxer.NewFrameWriter(cmd.OutOrStdout())
	for i, blk := range blocks {
		raw, err := blk.Encode()
		if err != nil {
			return err
		}
		frame := boxer.Frame{ID: fmt.Sprintf("%04d", (i+1)%10000), Method: boxer.MethodNewBlock, Payload: hex.EncodeToString(raw)}
		if err := out.WriteFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

func signedTransfer(store *core.BadgerStore) (*core.Transaction, error) {
	keyBytes, err := hex.DecodeString(flagMinePrivKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key format: %w", err)
	}
	to, err := parseAddress(flagMineTo)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	from := core.AddressFromKey(key)
	nonce, err := core.ReadNonce(store, from)
	if err != nil {
		return nil, err
	}
	tx := core.NewTx(from, to, flagMineAmount, nonce)
	if err := tx.Sign(key); err != nil {
		return nil, err
	}
	log.Info().Str("tx", tx.String()).Msg("transfer signed")
	return tx, nil
}

func parseAddress(s string) ([]byte, error) {
	addr, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(addr) != 20 {
		return nil, fmt.Errorf("address has %d bytes, want 20", len(addr))
	}
	return addr, nil
}
