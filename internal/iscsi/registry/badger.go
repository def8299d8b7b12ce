package registry

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/coregate/iscsid/internal/iscsi/connection"
	"github.com/coregate/iscsid/internal/iscsi/scsi"
	"github.com/coregate/iscsid/pkg/device"
)

// DeviceResolver opens (or looks up) the live BlockDevice backing one LUN.
// BadgerRegistry persists only the target/LUN/identity metadata -- a
// BlockDevice is a live handle (an open file, a network client) that
// cannot round-trip through a KV store -- so the registry calls back into
// the caller to obtain the actual device each time Lookup is asked for one
// it does not already hold open.
type DeviceResolver func(ctx context.Context, targetName string, lun uint64) (device.BlockDevice, error)

type lunRecord struct {
	Number   uint64 `json:"number"`
	Identity struct {
		VendorID   string `json:"vendor_id"`
		ProductID  string `json:"product_id"`
		ProductRev string `json:"product_rev"`
		NAA        string `json:"naa"` // hex-encoded
	} `json:"identity"`
}

type targetRecord struct {
	Name string      `json:"name"`
	LUNs []lunRecord `json:"luns"`
}

const targetKeyPrefix = "target:"
const portalKeyPrefix = "portal:"

func targetKey(name string) []byte { return []byte(targetKeyPrefix + name) }
func portalKey(name string) []byte { return []byte(portalKeyPrefix + name) }

// BadgerRegistry persists target/LUN metadata in a BadgerDB instance under
// a "target:"/"portal:" namespace, sharing a database with
// auth.BadgerCredentialStore. Open device handles are cached in memory
// since BlockDevice itself is never persisted.
type BadgerRegistry struct {
	db       *badger.DB
	resolve  DeviceResolver
	mu       sync.Mutex
	devCache map[string]device.BlockDevice // "target\x00lun" -> device
}

// NewBadgerRegistry wraps an already-opened BadgerDB handle. resolve is
// called to materialize a BlockDevice the first time a LUN is looked up in
// a process lifetime; results are cached for the life of the registry.
func NewBadgerRegistry(db *badger.DB, resolve DeviceResolver) *BadgerRegistry {
	return &BadgerRegistry{db: db, resolve: resolve, devCache: make(map[string]device.BlockDevice)}
}

func devCacheKey(targetName string, lun uint64) string {
	return fmt.Sprintf("%s\x00%d", targetName, lun)
}

func (r *BadgerRegistry) readTarget(targetName string) (*targetRecord, bool, error) {
	var rec targetRecord
	found := true
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(targetKey(targetName))
		if err == badger.ErrKeyNotFound {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil || !found {
		return nil, found, err
	}
	return &rec, true, nil
}

func (r *BadgerRegistry) Lookup(targetName string, lun uint64) (device.BlockDevice, scsi.Identity, bool) {
	ctx := context.Background()

	rec, found, err := r.readTarget(targetName)
	if err != nil || !found {
		return nil, scsi.Identity{}, false
	}

	var entry *lunRecord
	for i := range rec.LUNs {
		if rec.LUNs[i].Number == lun {
			entry = &rec.LUNs[i]
			break
		}
	}
	if entry == nil {
		return nil, scsi.Identity{}, false
	}

	id := scsi.Identity{VendorID: entry.Identity.VendorID, ProductID: entry.Identity.ProductID, ProductRev: entry.Identity.ProductRev}
	if naa, err := hex.DecodeString(entry.Identity.NAA); err == nil && len(naa) == len(id.NAA) {
		copy(id.NAA[:], naa)
	}

	key := devCacheKey(targetName, lun)
	r.mu.Lock()
	dev, cached := r.devCache[key]
	r.mu.Unlock()
	if cached {
		return dev, id, true
	}

	if r.resolve == nil {
		return nil, scsi.Identity{}, false
	}
	dev, err = r.resolve(ctx, targetName, lun)
	if err != nil {
		return nil, scsi.Identity{}, false
	}

	r.mu.Lock()
	r.devCache[key] = dev
	r.mu.Unlock()
	return dev, id, true
}

func (r *BadgerRegistry) LUNs(targetName string) []uint64 {
	rec, found, err := r.readTarget(targetName)
	if err != nil || !found {
		return nil
	}
	nums := make([]uint64, len(rec.LUNs))
	for i, l := range rec.LUNs {
		nums[i] = l.Number
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

func (r *BadgerRegistry) Portals() []connection.Portal {
	var out []connection.Portal
	_ = r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(portalKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			targetName := strings.TrimPrefix(string(it.Item().Key()), portalKeyPrefix)
			err := it.Item().Value(func(val []byte) error {
				var addrs []string
				if err := json.Unmarshal(val, &addrs); err != nil {
					return err
				}
				for _, addr := range addrs {
					out = append(out, connection.Portal{TargetName: targetName, Address: addr})
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TargetName < out[j].TargetName })
	return out
}

func (r *BadgerRegistry) AddTarget(ctx context.Context, name string, luns []LUNEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := targetRecord{Name: name, LUNs: make([]lunRecord, len(luns))}
	for i, entry := range luns {
		rec.LUNs[i].Number = entry.Number
		rec.LUNs[i].Identity.VendorID = entry.Identity.VendorID
		rec.LUNs[i].Identity.ProductID = entry.Identity.ProductID
		rec.LUNs[i].Identity.ProductRev = entry.Identity.ProductRev
		rec.LUNs[i].Identity.NAA = hex.EncodeToString(entry.Identity.NAA[:])

		r.mu.Lock()
		r.devCache[devCacheKey(name, entry.Number)] = entry.Device
		r.mu.Unlock()
	}

	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("registry: encoding target %q: %w", name, err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(targetKey(name), buf)
	})
	if err != nil {
		return fmt.Errorf("registry: storing target %q: %w", name, err)
	}
	return nil
}

func (r *BadgerRegistry) RemoveTarget(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(targetKey(name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("registry: removing target %q: %w", name, err)
	}

	r.mu.Lock()
	for key := range r.devCache {
		if strings.HasPrefix(key, name+"\x00") {
			delete(r.devCache, key)
		}
	}
	r.mu.Unlock()
	return nil
}

func (r *BadgerRegistry) Targets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var names []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(targetKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), targetKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: listing targets: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *BadgerRegistry) AddPortal(ctx context.Context, targetName, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var addrs []string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(portalKey(targetName))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &addrs)
		})
	})
	if err != nil {
		return fmt.Errorf("registry: reading portals for %q: %w", targetName, err)
	}

	for _, existing := range addrs {
		if existing == address {
			return nil
		}
	}
	addrs = append(addrs, address)

	buf, err := json.Marshal(addrs)
	if err != nil {
		return fmt.Errorf("registry: encoding portals for %q: %w", targetName, err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(portalKey(targetName), buf)
	})
	if err != nil {
		return fmt.Errorf("registry: storing portal for %q: %w", targetName, err)
	}
	return nil
}
