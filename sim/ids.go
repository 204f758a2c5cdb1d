package sim

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator hands out unique IDs for tasks and events.
type IDGenerator interface {
	Generate() string
}

type counterIDs struct {
	last atomic.Uint64
}

func (g *counterIDs) Generate() string {
	return strconv.FormatUint(g.last.Add(1), 10)
}

type globalIDs struct{}

func (globalIDs) Generate() string {
	return xid.New().String()
}

var ids struct {
	sync.Mutex
	gen IDGenerator
}

func pickIDGenerator(g IDGenerator) {
	ids.Lock()
	defer ids.Unlock()

	if ids.gen != nil {
		log.Panic("the id generator is already in use")
	}

	ids.gen = g
}

// UseSequentialIDGenerator makes IDs small increasing numbers, which keeps
// traces reproducible. It is the default.
func UseSequentialIDGenerator() {
	pickIDGenerator(&counterIDs{})
}

// UseParallelIDGenerator makes IDs globally unique, so that traces of several
// processes can go into one database.
func UseParallelIDGenerator() {
	pickIDGenerator(globalIDs{})
}

// GetIDGenerator returns the process wide ID generator.
func GetIDGenerator() IDGenerator {
	ids.Lock()
	defer ids.Unlock()

	if ids.gen == nil {
		ids.gen = &counterIDs{}
	}

	return ids.gen
}
