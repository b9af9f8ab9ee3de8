package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"
)

// seededStore fills a store with n patients of uniformly random risk.
func seededStore(b *testing.B, n int) *TreapStore {
	b.Helper()
	s := NewTreapStore(WithSeed(42))
	rng := rand.New(rand.NewPCG(7, 11))
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if err := s.Record(ctx, assessment(fmt.Sprintf("P-%07d", i), rng.Float64())); err != nil {
			b.Fatal(err)
		}
	}
	return s
}

func BenchmarkTreapStore_Record(b *testing.B) {
	for _, n := range []int{1_000, 100_000} {
		b.Run(fmt.Sprintf("existing=%d", n), func(b *testing.B) {
			s := seededStore(b, n)
			rng := rand.New(rand.NewPCG(1, 2))
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				// half rescore existing patients, half add new ones
				id := fmt.Sprintf("P-%07d", rng.IntN(2*n))
				if err := s.Record(ctx, assessment(id, rng.Float64())); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkTreapStore_Rank(b *testing.B) {
	const n = 100_000
	s := seededStore(b, n)
	rng := rand.New(rand.NewPCG(3, 4))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Rank(ctx, fmt.Sprintf("P-%07d", rng.IntN(n))); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTreapStore_TopN(b *testing.B) {
	s := seededStore(b, 100_000)
	ctx := context.Background()
	for _, limit := range []int{10, 100} {
		b.Run(fmt.Sprintf("limit=%d", limit), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := s.TopN(ctx, limit); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkTreapStore_Mixed mirrors worklist traffic: mostly scoring with
// occasional rank lookups and worklist views.
func BenchmarkTreapStore_Mixed(b *testing.B) {
	const n = 50_000
	s := seededStore(b, n)
	var seq atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		seed := seq.Add(1)
		rng := rand.New(rand.NewPCG(seed, seed*31))
		ctx := context.Background()
		for pb.Next() {
			id := fmt.Sprintf("P-%07d", rng.IntN(n))
			switch r := rng.Float64(); {
			case r < 0.6:
				_ = s.Record(ctx, assessment(id, rng.Float64()))
			case r < 0.9:
				_, _ = s.Rank(ctx, id)
			default:
				_, _ = s.TopN(ctx, 20)
			}
		}
	})
}
