package store

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/alphadose/haxmap"
	anothertrie "github.com/dghubble/trie"

	radix "github.com/armon/go-radix"

	"github.com/fenwick-labs/keydb/internal/streamid"
)

// These benchmarks exist to justify keeping the purpose-built rxNode
// tree over a generic off-the-shelf container: they pit it against the
// same comparison set the upstream stream-storage experiment used
// (armon/go-radix, dghubble/trie) plus a plain concurrent map
// (alphadose/haxmap), now promoted out of commented-out scratch code
// into a real benchmark since its Get/Set shape is an exact fit for
// this comparison.

var benchIDs []streamid.ID
var benchSeed int64

func TestMain(m *testing.M) {
	benchSeed = rand.Int63()
	fmt.Println("Using seed", benchSeed)
	benchIDs = genRandIDs(benchSeed, 10000)
	m.Run()
}

func genRandIDs(seed int64, count int) []streamid.ID {
	randgen := rand.New(rand.NewSource(seed))
	ids := make([]streamid.ID, count)
	for i := range count {
		ids[i] = streamid.ID{Lo: randgen.Uint64(), Seq: randgen.Uint64()}
	}
	sort.Slice(ids, func(i, j int) bool {
		return streamid.Compare(ids[i], ids[j]) < 0
	})
	return ids
}

func BenchmarkRxNodeInsert(b *testing.B) {
	var root rxNode
	b.ResetTimer()
	for i := range b.N {
		id := benchIDs[i%len(benchIDs)]
		root.create(pack(id)).entry = &streamEntry{ID: id}
	}
}

func BenchmarkRxNodeAllEntries(b *testing.B) {
	var root rxNode
	for _, id := range benchIDs {
		root.create(pack(id)).entry = &streamEntry{ID: id}
	}
	b.ResetTimer()
	for range b.N {
		root.allEntries()
	}
}

func BenchmarkAnotherTrieInsert(b *testing.B) {
	trie := anothertrie.RuneTrie{}
	b.ResetTimer()
	for i := range b.N {
		id := benchIDs[i%len(benchIDs)]
		trie.Put(id.String(), "mycoolval")
	}
}

func BenchmarkAnotherTrieSearch(b *testing.B) {
	trie := anothertrie.RuneTrie{}
	for _, id := range benchIDs {
		trie.Put(id.String(), "mycoolval")
	}
	b.ResetTimer()
	for i := range b.N {
		trie.Get(benchIDs[i%len(benchIDs)].String())
	}
}

func BenchmarkAnotherRadixInsert(b *testing.B) {
	rx := radix.New()
	b.ResetTimer()
	for i := range b.N {
		id := benchIDs[i%len(benchIDs)]
		rx.Insert(id.String(), "mycoolval")
	}
}

func BenchmarkAnotherRadixSearch(b *testing.B) {
	rx := radix.New()
	for _, id := range benchIDs {
		rx.Insert(id.String(), "mycoolval")
	}
	b.ResetTimer()
	for i := range b.N {
		rx.Get(benchIDs[i%len(benchIDs)].String())
	}
}

func BenchmarkHaxmapInsert(b *testing.B) {
	hm := haxmap.New[string, string]()
	b.ResetTimer()
	for i := range b.N {
		id := benchIDs[i%len(benchIDs)]
		hm.Set(id.String(), "mycoolval")
	}
}

func BenchmarkHaxmapSearch(b *testing.B) {
	hm := haxmap.New[string, string]()
	for _, id := range benchIDs {
		hm.Set(id.String(), "mycoolval")
	}
	b.ResetTimer()
	for i := range b.N {
		hm.Get(benchIDs[i%len(benchIDs)].String())
	}
}
