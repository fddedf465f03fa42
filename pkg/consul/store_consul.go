//go:build consul

package consul

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"

	"db-monitor/pkg/model"
)

// Store is a Consul-backed instance registry.
type Store struct {
	cli *consulapi.Client
}

const (
	instancePrefix = "db-monitor/instances/"
	sequenceKey    = "db-monitor/sequence/instance"
	casAttempts    = 10
)

func NewStore(addr string) (*Store, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "consul client for %s", addr)
	}
	return &Store{cli: cli}, nil
}

func instanceKey(id uint) string {
	return instancePrefix + strconv.FormatUint(uint64(id), 10)
}

func (s *Store) GetInstance(id uint) (model.Instance, bool, error) {
	pair, _, err := s.cli.KV().Get(instanceKey(id), nil)
	if err != nil {
		return model.Instance{}, false, errors.Wrapf(err, "get instance %d", id)
	}
	if pair == nil {
		return model.Instance{}, false, nil
	}
	var inst model.Instance
	if err := json.Unmarshal(pair.Value, &inst); err != nil {
		return model.Instance{}, false, errors.Wrapf(err, "decode instance %d", id)
	}
	return inst, true, nil
}

func (s *Store) ListInstances() ([]model.Instance, error) {
	pairs, _, err := s.cli.KV().List(instancePrefix, nil)
	if err != nil {
		return nil, errors.Wrap(err, "list instances")
	}
	out := []model.Instance{}
	for _, p := range pairs {
		var inst model.Instance
		if err := json.Unmarshal(p.Value, &inst); err == nil {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListActiveInstances() ([]model.Instance, error) {
	all, err := s.ListInstances()
	if err != nil {
		return nil, err
	}
	out := make([]model.Instance, 0, len(all))
	for _, inst := range all {
		if inst.Enabled() {
			out = append(out, inst)
		}
	}
	return out, nil
}

// nextID increments the sequence key with check-and-set.
func (s *Store) nextID() (uint, error) {
	kv := s.cli.KV()
	for i := 0; i < casAttempts; i++ {
		pair, _, err := kv.Get(sequenceKey, nil)
		if err != nil {
			return 0, err
		}
		var cur uint64
		var index uint64
		if pair != nil {
			cur, _ = strconv.ParseUint(string(pair.Value), 10, 64)
			index = pair.ModifyIndex
		}
		next := cur + 1
		ok, _, err := kv.CAS(&consulapi.KVPair{
			Key:         sequenceKey,
			Value:       []byte(strconv.FormatUint(next, 10)),
			ModifyIndex: index,
		}, nil)
		if err != nil {
			return 0, err
		}
		if ok {
			return uint(next), nil
		}
	}
	return 0, errors.Errorf("instance sequence CAS failed after %d attempts", casAttempts)
}

func (s *Store) put(inst model.Instance) error {
	b, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	_, err = s.cli.KV().Put(&consulapi.KVPair{Key: instanceKey(inst.ID), Value: b}, nil)
	return err
}

func (s *Store) CreateInstance(inst model.Instance) (model.Instance, error) {
	id, err := s.nextID()
	if err != nil {
		return inst, err
	}
	now := time.Now()
	inst.ID = id
	inst.Status = model.StatusEnabled
	inst.CreatedAt, inst.UpdatedAt = now, now
	return inst, s.put(inst)
}

func (s *Store) UpdateInstance(inst model.Instance) (model.Instance, error) {
	existing, ok, err := s.GetInstance(inst.ID)
	if err != nil {
		return inst, err
	}
	if !ok {
		return inst, model.ErrInstanceNotFound
	}
	inst.CreatedAt = existing.CreatedAt
	inst.UpdatedAt = time.Now()
	return inst, s.put(inst)
}

func (s *Store) DeleteInstance(id uint) (bool, error) {
	_, ok, err := s.GetInstance(id)
	if err != nil || !ok {
		return false, err
	}
	if _, err := s.cli.KV().Delete(instanceKey(id), nil); err != nil {
		return false, err
	}
	return true, nil
}
