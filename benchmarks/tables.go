package benchmarks

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/zeu5/crm/policies"
	"github.com/zeu5/crm/store"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// tableRegistry remembers the value tables of the tabular learners so they
// can be stored once training is over
type tableRegistry struct {
	lock   *sync.Mutex
	tables map[string]store.Snapshotter
}

func newTableRegistry() *tableRegistry {
	return &tableRegistry{
		lock:   new(sync.Mutex),
		tables: make(map[string]store.Snapshotter),
	}
}

func (t *tableRegistry) add(experiment string, run int, agent *policies.Agent) {
	q, ok := agent.ValueFunction().(*policies.QTable)
	if !ok {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.tables[experiment+"_"+strconv.Itoa(run)] = q
}

func (t *tableRegistry) save(ctx context.Context, s store.TableStore, logger logrus.FieldLogger) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	names := maps.Keys(t.tables)
	slices.Sort(names)
	for _, name := range names {
		if err := store.Save(ctx, s, name, t.tables[name]); err != nil {
			return err
		}
		logger.WithField("table", name).Debug("stored value table")
	}
	return nil
}

// tableStore is nil when no table storage is configured
func (c *cli) tableStore() store.TableStore {
	switch {
	case c.config.Tables != "":
		return store.NewFileTableStore(c.config.Tables)
	case c.config.Redis != "":
		return store.NewRedisTableStore(redis.NewClient(&redis.Options{Addr: c.config.Redis}), "")
	default:
		return nil
	}
}
