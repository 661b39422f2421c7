package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"boxer/core"
)

var flagBalanceAddr string

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print an account balance from the local chain state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, err := parseAddress(flagBalanceAddr)
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}
		dataDir := viper.GetString("data-dir")
		if dataDir == "" {
			return fmt.Errorf("balance needs --data-dir")
		}
		store, err := core.OpenBadgerStore(dataDir, true)
		if err != nil {
			return fmt.Errorf("cannot access database (is a driver running on %s?): %w", dataDir, err)
		}
		defer store.Close()

		balance, err := core.ReadBalance(store, addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", flagBalanceAddr, balance)
		return nil
	},
}

var (
	flagKeySave      bool
	flagKeyOutputDir string
)

var generateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate a secp256k1 key pair",
	RunE: func(cmd *cobra.Command, _ []string) error {
		privKey, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		privKeyHex := hex.EncodeToString(crypto.FromECDSA(privKey))
		addressHex := hex.EncodeToString(core.AddressFromKey(privKey))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "private key: %s\n", privKeyHex)
		fmt.Fprintf(out, "public key:  %s\n", hex.EncodeToString(crypto.FromECDSAPub(&privKey.PublicKey)))
		fmt.Fprintf(out, "address:     %s\n", addressHex)

		if !flagKeySave {
			return nil
		}
		if err := os.MkdirAll(flagKeyOutputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		keyFile := filepath.Join(flagKeyOutputDir, "boxer_private_key.txt")
		if err := os.WriteFile(keyFile, []byte(privKeyHex), 0o600); err != nil {
			return fmt.Errorf("failed to save private key: %w", err)
		}
		addrFile := filepath.Join(flagKeyOutputDir, "boxer_address.txt")
		if err := os.WriteFile(addrFile, []byte(addressHex), 0o644); err != nil {
			return fmt.Errorf("failed to save address: %w", err)
		}
		fmt.Fprintf(out, "saved %s and %s\n", keyFile, addrFile)
		return nil
	},
}

func init() {
	balanceCmd.Flags().StringVar(&flagBalanceAddr, "addr", "", "address (hex)")
	generateKeyCmd.Flags().BoolVar(&flagKeySave, "save", false, "save the key pair to files")
	generateKeyCmd.Flags().StringVar(&flagKeyOutputDir, "output-dir", ".", "directory for saved key files")
}
