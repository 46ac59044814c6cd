package commands

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/chain"
	"github.com/mosaicnetworks/indexnode/src/config"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/engine"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/spf13/cobra"
)

var (
	privKeyFile    string
	pubKeyFile     string
	keygenDataDir  string
	withCollateral bool
)

// NewKeygenCmd produces a KeygenCmd which create a key pair
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		Long: `Create the operator key of an indexnode. With --collateral, create
instead the key owning a collateral, and add the collateral to the genesis
collaterals of the data directory.`,
		RunE: keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&keygenDataDir, "datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().StringVar(&privKeyFile, "priv", "", "File where the private key will be written (default [datadir]/priv_key)")
	cmd.Flags().StringVar(&pubKeyFile, "pub", "", "File where the public key will be written (default [datadir]/key.pub)")
	cmd.Flags().BoolVar(&withCollateral, "collateral", false, "Create a collateral key and output")
}

func keygen(cmd *cobra.Command, args []string) error {
	if privKeyFile == "" {
		name := config.DefaultKeyfile
		if withCollateral {
			name = config.DefaultCollateralKeyfile
		}
		privKeyFile = filepath.Join(keygenDataDir, name)
	}
	if pubKeyFile == "" {
		pubKeyFile = privKeyFile + ".pub"
		if !withCollateral {
			pubKeyFile = filepath.Join(keygenDataDir, "key.pub")
		}
	}

	key, err := engine.Keygen(privKeyFile)
	if err != nil {
		return err
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)

	if err := os.MkdirAll(path.Dir(pubKeyFile), 0700); err != nil {
		return fmt.Errorf("Writing public key: %s", err)
	}

	pub := keys.PublicKeyHex(keys.PublicKeyBytes(key))

	if err := ioutil.WriteFile(pubKeyFile, []byte(pub), 0600); err != nil {
		return fmt.Errorf("Writing public key: %s", err)
	}

	fmt.Printf("Your public key has been saved to: %s\n", pubKeyFile)

	if !withCollateral {
		return nil
	}

	id := indexnode.NewIdentity(chainhash.DoubleHashH(keys.PublicKeyBytes(key)), 0)
	store := chain.NewJSONCollaterals(keygenDataDir)
	err = store.Add(chain.GenesisCollateral{
		Identity: id.String(),
		Owner:    pub,
	})
	if err != nil {
		return fmt.Errorf("Writing collateral: %s", err)
	}

	fmt.Printf("Your collateral %s has been added to: %s\n", id, store.Path())
	fmt.Printf("Run with --collateral %s\n", id)

	return nil
}
