package ports

import "github.com/ark-network/coinjoin/internal/core/domain"

type RepoManager interface {
	Settings() domain.SettingsRepository
	// RegisterSettingsHandler registers handler to be called after every
	// change of the settings of the given wallet, and returns the function
	// that unregisters it.
	RegisterSettingsHandler(walletID string, handler func(domain.WalletSettings)) func()
	Close()
}
