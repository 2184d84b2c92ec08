package repository

import (
	"errors"
	"sync"

	"gorm.io/gorm"
)

// ErrFactoryNotInitialized is returned by GetGlobalRepositories before
// InitializeFactory ran.
var ErrFactoryNotInitialized = errors.New("repository factory not initialized")

// Factory builds the repository set once per database handle
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// GetRepositories returns the shared repository set of this factory
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

var (
	globalMu      sync.RWMutex
	globalFactory *Factory
)

// InitializeFactory installs the process-wide factory. Later calls keep the
// first factory so repositories handed out earlier stay valid.
func InitializeFactory(db *gorm.DB) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalFactory == nil {
		globalFactory = NewFactory(db)
	}
}

// GetGlobalRepositories returns the repositories of the process-wide factory.
func GetGlobalRepositories() (*Repositories, error) {
	globalMu.RLock()
	f := globalFactory
	globalMu.RUnlock()
	if f == nil {
		return nil, ErrFactoryNotInitialized
	}
	return f.GetRepositories(), nil
}
