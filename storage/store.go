package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	bolt "go.etcd.io/bbolt"

	"rentchain/core/types"
	"rentchain/native/escrow"
	"rentchain/native/rental"
	"rentchain/native/yieldfarm"
)

var (
	bucketAccounts   = []byte("accounts")
	bucketProperties = []byte("properties")
	bucketRentals    = []byte("rentals")
	bucketEscrows    = []byte("escrows")
	bucketDisputes   = []byte("disputes")
	bucketStrategies = []byte("strategies")
	bucketStakes     = []byte("stakes")

	bucketActiveRentals   = []byte("idx_active_rentals")
	bucketEscrowByRental  = []byte("idx_escrow_by_rental")
	bucketDisputeByEscrow = []byte("idx_dispute_by_escrow")
	bucketLandlordProps   = []byte("idx_landlord_properties")
	bucketTenantRentals   = []byte("idx_tenant_rentals")
)

var allBuckets = [][]byte{
	bucketAccounts, bucketProperties, bucketRentals, bucketEscrows,
	bucketDisputes, bucketStrategies, bucketStakes, bucketActiveRentals,
	bucketEscrowByRental, bucketDisputeByEscrow, bucketLandlordProps,
	bucketTenantRentals,
}

// Store is the Bolt-backed state backend shared by every engine. Records are
// JSON-encoded; record ids come from the per-bucket Bolt sequence. Records
// are never deleted, only appended or mutated in place.
type Store struct {
	db *bolt.DB

	rentalVault [20]byte
	escrowVault [20]byte
	yieldVault  [20]byte
}

// Open initialises the Bolt database at path and creates every bucket. Module
// vault addresses default to deterministic derived addresses and can be
// overridden before the store is handed to the engines.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		db:          db,
		rentalVault: DeriveModuleAddress("rental/vault"),
		escrowVault: DeriveModuleAddress("escrow/vault"),
		yieldVault:  DeriveModuleAddress("yield/vault"),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DeriveModuleAddress maps a module label to a stable custody address. No key
// controls the address; funds there move only through engine operations.
func DeriveModuleAddress(label string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("rentchain/module/" + label))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// SetVaults overrides the derived module custody addresses, normally from
// config. A zero address leaves the corresponding default in place.
func (s *Store) SetVaults(rentalVault, escrowVault, yieldVault [20]byte) {
	var zero [20]byte
	if rentalVault != zero {
		s.rentalVault = rentalVault
	}
	if escrowVault != zero {
		s.escrowVault = escrowVault
	}
	if yieldVault != zero {
		s.yieldVault = yieldVault
	}
}

func u64Key(id uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], id)
	return key[:]
}

func (s *Store) putJSON(bucket []byte, key []byte, record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, encoded)
	})
}

func (s *Store) getJSON(bucket []byte, key []byte, record any) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(key)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, record)
	})
	return found, err
}

// createJSON assigns the next sequence id via assign, then persists the
// record under it, all in one transaction.
func (s *Store) createJSON(bucket []byte, assign func(id uint64) (any, error)) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		record, err := assign(seq)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := b.Put(u64Key(seq), encoded); err != nil {
			return err
		}
		id = seq
		return nil
	})
	return id, err
}

func (s *Store) putIndex(bucket []byte, key []byte, id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, u64Key(id))
	})
}

func (s *Store) getIndex(bucket []byte, key []byte) (uint64, bool, error) {
	var (
		id    uint64
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(key)
		if len(raw) != 8 {
			return nil
		}
		id = binary.BigEndian.Uint64(raw)
		found = true
		return nil
	})
	return id, found, err
}

// appendIndexList adds id to the JSON id list stored under key, preserving
// insertion order and skipping duplicates.
func (s *Store) appendIndexList(bucket []byte, key []byte, id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		var ids []uint64
		if raw := b.Get(key); raw != nil {
			if err := json.Unmarshal(raw, &ids); err != nil {
				return err
			}
		}
		for _, existing := range ids {
			if existing == id {
				return nil
			}
		}
		ids = append(ids, id)
		encoded, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return b.Put(key, encoded)
	})
}

func (s *Store) readIndexList(bucket []byte, key []byte) ([]uint64, error) {
	var ids []uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(key)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &ids)
	})
	return ids, err
}

// --- bank.State ---

// GetAccount loads the custody account for addr, returning a zero-balance
// account when none exists yet.
func (s *Store) GetAccount(addr [20]byte) (*types.Account, error) {
	account := &types.Account{}
	found, err := s.getJSON(bucketAccounts, addr[:], account)
	if err != nil {
		return nil, err
	}
	if !found {
		return types.EnsureAccount(nil), nil
	}
	return types.EnsureAccount(account), nil
}

// PutAccount persists the custody account for addr.
func (s *Store) PutAccount(addr [20]byte, account *types.Account) error {
	return s.putJSON(bucketAccounts, addr[:], types.EnsureAccount(account))
}

// --- rental.EngineState ---

func (s *Store) PropertyCreate(p *rental.Property) (uint64, error) {
	return s.createJSON(bucketProperties, func(id uint64) (any, error) {
		clone := p.Clone()
		clone.ID = id
		return clone, nil
	})
}

func (s *Store) PropertyGet(id uint64) (*rental.Property, bool, error) {
	property := &rental.Property{}
	found, err := s.getJSON(bucketProperties, u64Key(id), property)
	if err != nil || !found {
		return nil, false, err
	}
	return property, true, nil
}

func (s *Store) PropertyPut(p *rental.Property) error {
	sanitized, err := rental.SanitizeProperty(p)
	if err != nil {
		return err
	}
	return s.putJSON(bucketProperties, u64Key(sanitized.ID), sanitized)
}

func (s *Store) RentalCreate(a *rental.Agreement) (uint64, error) {
	return s.createJSON(bucketRentals, func(id uint64) (any, error) {
		clone := a.Clone()
		clone.ID = id
		return clone, nil
	})
}

func (s *Store) RentalGet(id uint64) (*rental.Agreement, bool, error) {
	agreement := &rental.Agreement{}
	found, err := s.getJSON(bucketRentals, u64Key(id), agreement)
	if err != nil || !found {
		return nil, false, err
	}
	return agreement, true, nil
}

func (s *Store) RentalPut(a *rental.Agreement) error {
	sanitized, err := rental.SanitizeAgreement(a)
	if err != nil {
		return err
	}
	return s.putJSON(bucketRentals, u64Key(sanitized.ID), sanitized)
}

func (s *Store) ActiveRentalForProperty(propertyID uint64) (uint64, bool, error) {
	return s.getIndex(bucketActiveRentals, u64Key(propertyID))
}

func (s *Store) SetActiveRentalForProperty(propertyID, rentalID uint64) error {
	return s.putIndex(bucketActiveRentals, u64Key(propertyID), rentalID)
}

func (s *Store) ClearActiveRentalForProperty(propertyID uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketActiveRentals).Delete(u64Key(propertyID))
	})
}

func (s *Store) LandlordPropertyIndexAdd(addr [20]byte, propertyID uint64) error {
	return s.appendIndexList(bucketLandlordProps, addr[:], propertyID)
}

func (s *Store) LandlordProperties(addr [20]byte) ([]uint64, error) {
	return s.readIndexList(bucketLandlordProps, addr[:])
}

func (s *Store) TenantRentalIndexAdd(addr [20]byte, rentalID uint64) error {
	return s.appendIndexList(bucketTenantRentals, addr[:], rentalID)
}

func (s *Store) TenantRentals(addr [20]byte) ([]uint64, error) {
	return s.readIndexList(bucketTenantRentals, addr[:])
}

func (s *Store) RentalVaultAddress() ([20]byte, error) {
	return s.rentalVault, nil
}

// --- escrow.EngineState ---

func (s *Store) EscrowCreate(e *escrow.Escrow) (uint64, error) {
	return s.createJSON(bucketEscrows, func(id uint64) (any, error) {
		clone := e.Clone()
		clone.ID = id
		return clone, nil
	})
}

func (s *Store) EscrowGet(id uint64) (*escrow.Escrow, bool, error) {
	record := &escrow.Escrow{}
	found, err := s.getJSON(bucketEscrows, u64Key(id), record)
	if err != nil || !found {
		return nil, false, err
	}
	return record, true, nil
}

func (s *Store) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	return s.putJSON(bucketEscrows, u64Key(sanitized.ID), sanitized)
}

func (s *Store) EscrowForRental(rentalID uint64) (uint64, bool, error) {
	return s.getIndex(bucketEscrowByRental, u64Key(rentalID))
}

func (s *Store) SetEscrowForRental(rentalID, escrowID uint64) error {
	return s.putIndex(bucketEscrowByRental, u64Key(rentalID), escrowID)
}

func (s *Store) DisputeCreate(d *escrow.Dispute) (uint64, error) {
	return s.createJSON(bucketDisputes, func(id uint64) (any, error) {
		clone := d.Clone()
		clone.ID = id
		return clone, nil
	})
}

func (s *Store) DisputeGet(id uint64) (*escrow.Dispute, bool, error) {
	record := &escrow.Dispute{}
	found, err := s.getJSON(bucketDisputes, u64Key(id), record)
	if err != nil || !found {
		return nil, false, err
	}
	return record, true, nil
}

func (s *Store) DisputePut(d *escrow.Dispute) error {
	sanitized, err := escrow.SanitizeDispute(d)
	if err != nil {
		return err
	}
	return s.putJSON(bucketDisputes, u64Key(sanitized.ID), sanitized)
}

func (s *Store) DisputeForEscrow(escrowID uint64) (uint64, bool, error) {
	return s.getIndex(bucketDisputeByEscrow, u64Key(escrowID))
}

func (s *Store) SetDisputeForEscrow(escrowID, disputeID uint64) error {
	return s.putIndex(bucketDisputeByEscrow, u64Key(escrowID), disputeID)
}

func (s *Store) EscrowVaultAddress() ([20]byte, error) {
	return s.escrowVault, nil
}

// --- yieldfarm.EngineState ---

func (s *Store) StrategyCreate(strategy *yieldfarm.Strategy) (uint64, error) {
	return s.createJSON(bucketStrategies, func(id uint64) (any, error) {
		clone := strategy.Clone()
		clone.ID = id
		return clone, nil
	})
}

func (s *Store) StrategyGet(id uint64) (*yieldfarm.Strategy, bool, error) {
	strategy := &yieldfarm.Strategy{}
	found, err := s.getJSON(bucketStrategies, u64Key(id), strategy)
	if err != nil || !found {
		return nil, false, err
	}
	return strategy, true, nil
}

func (s *Store) StrategyPut(strategy *yieldfarm.Strategy) error {
	sanitized, err := yieldfarm.SanitizeStrategy(strategy)
	if err != nil {
		return err
	}
	return s.putJSON(bucketStrategies, u64Key(sanitized.ID), sanitized)
}

func (s *Store) StakeGet(rentalID uint64) (*yieldfarm.Stake, bool, error) {
	stake := &yieldfarm.Stake{}
	found, err := s.getJSON(bucketStakes, u64Key(rentalID), stake)
	if err != nil || !found {
		return nil, false, err
	}
	return stake, true, nil
}

func (s *Store) StakePut(stake *yieldfarm.Stake) error {
	sanitized, err := yieldfarm.SanitizeStake(stake)
	if err != nil {
		return err
	}
	return s.putJSON(bucketStakes, u64Key(sanitized.RentalID), sanitized)
}

func (s *Store) YieldVaultAddress() ([20]byte, error) {
	return s.yieldVault, nil
}
