package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	jobStore          *JobStore
	shadowStore       *ShadowStore
	registrationStore *RegistrationStore
	deliveryLogStore  *DeliveryLogStore
	cachedRegistry    *CachedRegistrationStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (*RepositoryFactory, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.jobStore != nil && f.shadowStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

// WithRegistrationCache fronts the registration store with cacheService.
// A nil service builds one from the go-repository-cache defaults.
func (f *RepositoryFactory) WithRegistrationCache(cacheService repositorycache.CacheService) error {
	if f == nil || f.registrationStore == nil {
		return fmt.Errorf("sqlstore: registration store is not built")
	}
	if cacheService == nil {
		built, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
		if err != nil {
			return fmt.Errorf("sqlstore: build registration cache: %w", err)
		}
		cacheService = built
	}
	cached, err := NewCachedRegistrationStore(f.registrationStore, cacheService)
	if err != nil {
		return err
	}
	f.cachedRegistry = cached
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) JobStore() core.JobStore {
	if f == nil {
		return nil
	}
	return f.jobStore
}

func (f *RepositoryFactory) ShadowStore() core.ShadowStore {
	if f == nil {
		return nil
	}
	return f.shadowStore
}

// RegistrationStore returns the cached store when a cache was configured.
func (f *RepositoryFactory) RegistrationStore() core.RegistrationStore {
	if f == nil {
		return nil
	}
	if f.cachedRegistry != nil {
		return f.cachedRegistry
	}
	return f.registrationStore
}

func (f *RepositoryFactory) DeliveryLogStore() core.DeliveryLogStore {
	if f == nil {
		return nil
	}
	return f.deliveryLogStore
}

func (f *RepositoryFactory) initStores() error {
	jobStore, err := NewJobStore(f.db)
	if err != nil {
		return err
	}
	shadowStore, err := NewShadowStore(f.db)
	if err != nil {
		return err
	}
	registrationStore, err := NewRegistrationStore(f.db)
	if err != nil {
		return err
	}
	deliveryLogStore, err := NewDeliveryLogStore(f.db)
	if err != nil {
		return err
	}
	f.jobStore = jobStore
	f.shadowStore = shadowStore
	f.registrationStore = registrationStore
	f.deliveryLogStore = deliveryLogStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
