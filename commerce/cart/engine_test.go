package cart_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/cart"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
	dbx "github.com/tanpawarit/Chative-Conversational-Commerce/commerce/db"
)

type fixture struct {
	engine *cart.Engine
	// a: stock 5, price 10. b: stock 2, price 20.
	a, b catalog.Product
}

type backend struct {
	name  string
	build func(t *testing.T, opts cart.Options) fixture
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedProducts(t *testing.T, repo catalog.Repository) (catalog.Product, catalog.Product) {
	t.Helper()
	ctx := context.Background()
	a := catalog.Product{ExternalID: "1", Name: "Camiseta", Size: "M", Color: "Azul", Stock: 5, Price: 10, Available: true, Category: "Ropa"}
	b := catalog.Product{ExternalID: "2", Name: "Pantalón", Size: "L", Color: "Negro", Stock: 2, Price: 20, Available: true, Category: "Ropa"}
	require.NoError(t, repo.Insert(ctx, &a))
	require.NoError(t, repo.Insert(ctx, &b))
	return a, b
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			build: func(t *testing.T, opts cart.Options) fixture {
				repo := catalog.NewMemoryRepository()
				a, b := seedProducts(t, repo)
				store, err := cart.NewMemoryStore(repo)
				require.NoError(t, err)
				engine, err := cart.NewEngine(store, opts, cart.WithClock(func() time.Time { return fixedNow }))
				require.NoError(t, err)
				return fixture{engine: engine, a: a, b: b}
			},
		},
		{
			name: "sqlite",
			build: func(t *testing.T, opts cart.Options) fixture {
				ctx := context.Background()
				db, err := dbx.Open(ctx, dbx.Config{Driver: dbx.DriverSQLite, URL: "file::memory:?_fk=1"})
				require.NoError(t, err)
				t.Cleanup(func() { _ = db.Close() })
				require.NoError(t, dbx.Migrate(ctx, db))

				a, b := seedProducts(t, catalog.NewBunRepository(db))
				engine, err := cart.NewEngine(cart.NewBunStore(db), opts, cart.WithClock(func() time.Time { return fixedNow }))
				require.NoError(t, err)
				return fixture{engine: engine, a: a, b: b}
			},
		},
	}
}

func forEachBackend(t *testing.T, opts cart.Options, fn func(t *testing.T, f fixture)) {
	for _, be := range backends() {
		be := be
		t.Run(be.name, func(t *testing.T) {
			t.Parallel()
			fn(t, be.build(t, opts))
		})
	}
}

func quantities(v cart.View) map[int64]int {
	out := make(map[int64]int, len(v.Items))
	for _, it := range v.Items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

func TestCreateOrMergeFreshCart(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		view, err := f.engine.CreateOrMerge(ctx, "whatsapp_1", []cart.LineRequest{
			{ProductID: f.a.ID, Quantity: 3},
			{ProductID: f.b.ID, Quantity: 1},
		})
		require.NoError(t, err)
		require.Equal(t, "whatsapp_1", view.SessionKey)
		require.Len(t, view.Items, 2)
		require.InDelta(t, 50.0, view.Total, 1e-9)
		require.Equal(t, map[int64]int{f.a.ID: 3, f.b.ID: 1}, quantities(view))
		for _, it := range view.Items {
			require.InDelta(t, it.UnitPrice*float64(it.Quantity), it.Subtotal, 1e-9)
		}
	})
}

func TestCreateOrMergeAddsToExistingLine(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		req := []cart.LineRequest{{ProductID: f.a.ID, Quantity: 2}}

		first, err := f.engine.CreateOrMerge(ctx, "s1", req)
		require.NoError(t, err)
		second, err := f.engine.CreateOrMerge(ctx, "s1", req)
		require.NoError(t, err)

		require.Equal(t, first.ID, second.ID)
		require.Len(t, second.Items, 1)
		require.Equal(t, 4, second.Items[0].Quantity)
		require.InDelta(t, 40.0, second.Total, 1e-9)
	})
}

func TestCreateOrMergeSumsDuplicateProducts(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		view, err := f.engine.CreateOrMerge(context.Background(), "s1", []cart.LineRequest{
			{ProductID: f.a.ID, Quantity: 1},
			{ProductID: f.a.ID, Quantity: 2},
		})
		require.NoError(t, err)
		require.Len(t, view.Items, 1)
		require.Equal(t, 3, view.Items[0].Quantity)
	})
}

func TestCreateOrMergeReportsAllMissingProducts(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		_, err := f.engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{
			{ProductID: 999, Quantity: 1},
			{ProductID: f.a.ID, Quantity: 1},
			{ProductID: 998, Quantity: 1},
		})
		require.ErrorIs(t, err, cart.ErrNotFound)

		var nf *cart.NotFoundError
		require.True(t, errors.As(err, &nf))
		require.Equal(t, []int64{998, 999}, nf.ProductIDs)

		_, err = f.engine.Fetch(ctx, "s1")
		require.ErrorIs(t, err, cart.ErrNotFound, "a failed create must not leave a cart behind")
	})
}

func TestCreateOrMergeInsufficientStock(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		_, err := f.engine.CreateOrMerge(context.Background(), "s1", []cart.LineRequest{
			{ProductID: f.a.ID, Quantity: 1},
			{ProductID: f.b.ID, Quantity: 3},
		})
		require.ErrorIs(t, err, cart.ErrInsufficientStock)

		var se *cart.InsufficientStockError
		require.True(t, errors.As(err, &se))
		require.Equal(t, f.b.ID, se.ProductID)
		require.Equal(t, 2, se.Available)
		require.Equal(t, 3, se.Requested)
		require.Equal(t, f.b.Name, se.ProductName)
	})
}

func TestCreateOrMergeValidation(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		cases := map[string][]cart.LineRequest{
			"empty":         nil,
			"zero quantity": {{ProductID: f.a.ID, Quantity: 0}},
			"negative id":   {{ProductID: -1, Quantity: 1}},
		}
		for name, lines := range cases {
			_, err := f.engine.CreateOrMerge(ctx, "s1", lines)
			require.ErrorIs(t, err, cart.ErrValidation, name)
		}
	})
}

func TestCreateOrMergeGeneratesSessionKey(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		view, err := f.engine.CreateOrMerge(context.Background(), "", []cart.LineRequest{{ProductID: f.a.ID, Quantity: 1}})
		require.NoError(t, err)
		require.Regexp(t, `^session_`+strconv.FormatInt(fixedNow.UnixMilli(), 10)+`_[0-9a-f]{7}$`, view.SessionKey)
	})
}

func TestFetchByIDAndSessionMatch(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		created, err := f.engine.CreateOrMerge(ctx, "whatsapp_42", []cart.LineRequest{{ProductID: f.a.ID, Quantity: 2}})
		require.NoError(t, err)

		bySession, err := f.engine.Fetch(ctx, "whatsapp_42")
		require.NoError(t, err)
		byID, err := f.engine.Fetch(ctx, strconv.FormatInt(created.ID, 10))
		require.NoError(t, err)

		require.Equal(t, bySession, byID)
		require.Equal(t, created.ID, byID.ID)
	})
}

func TestFetchNumericSessionKeyFallsBack(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		created, err := f.engine.CreateOrMerge(ctx, "5551234", []cart.LineRequest{{ProductID: f.a.ID, Quantity: 1}})
		require.NoError(t, err)

		got, err := f.engine.Fetch(ctx, "5551234")
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)
	})
}

func TestApplyUpdatesSemantics(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		_, err := f.engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{
			{ProductID: f.a.ID, Quantity: 3},
			{ProductID: f.b.ID, Quantity: 1},
		})
		require.NoError(t, err)

		// b exceeds stock on purpose: updates skip the stock check by default.
		view, err := f.engine.ApplyUpdates(ctx, "s1", []cart.LineUpdate{
			{ProductID: f.a.ID, Quantity: 0},
			{ProductID: f.b.ID, Quantity: 5},
		})
		require.NoError(t, err)
		require.Equal(t, map[int64]int{f.b.ID: 5}, quantities(view))
		require.InDelta(t, 100.0, view.Total, 1e-9)
	})
}

func TestApplyUpdatesRemovingAbsentLineIsNoop(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		_, err := f.engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{{ProductID: f.a.ID, Quantity: 1}})
		require.NoError(t, err)

		view, err := f.engine.ApplyUpdates(ctx, "s1", []cart.LineUpdate{{ProductID: f.b.ID, Quantity: 0}})
		require.NoError(t, err)
		require.Equal(t, map[int64]int{f.a.ID: 1}, quantities(view))

		again, err := f.engine.ApplyUpdates(ctx, "s1", []cart.LineUpdate{{ProductID: f.b.ID, Quantity: 0}})
		require.NoError(t, err)
		require.Equal(t, quantities(view), quantities(again))
	})
}

func TestApplyUpdatesOverwritesAndInserts(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		_, err := f.engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{{ProductID: f.a.ID, Quantity: 4}})
		require.NoError(t, err)

		view, err := f.engine.ApplyUpdates(ctx, "s1", []cart.LineUpdate{
			{ProductID: f.a.ID, Quantity: 1},
			{ProductID: f.b.ID, Quantity: 2},
		})
		require.NoError(t, err)
		require.Equal(t, map[int64]int{f.a.ID: 1, f.b.ID: 2}, quantities(view))
	})
}

func TestApplyUpdatesErrors(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		_, err := f.engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{{ProductID: f.a.ID, Quantity: 1}})
		require.NoError(t, err)

		_, err = f.engine.ApplyUpdates(ctx, "s1", []cart.LineUpdate{{ProductID: 777, Quantity: 1}})
		var nf *cart.NotFoundError
		require.True(t, errors.As(err, &nf))
		require.Equal(t, []int64{777}, nf.ProductIDs)

		_, err = f.engine.ApplyUpdates(ctx, "s1", []cart.LineUpdate{{ProductID: f.a.ID, Quantity: -1}})
		require.ErrorIs(t, err, cart.ErrValidation)

		_, err = f.engine.ApplyUpdates(ctx, "s1", nil)
		require.ErrorIs(t, err, cart.ErrValidation)

		_, err = f.engine.ApplyUpdates(ctx, "missing", []cart.LineUpdate{{ProductID: f.a.ID, Quantity: 1}})
		require.ErrorIs(t, err, cart.ErrNotFound)

		got, err := f.engine.Fetch(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, map[int64]int{f.a.ID: 1}, quantities(got), "failed updates must roll back")
	})
}

func TestApplyUpdatesEnforcesStockWhenConfigured(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{EnforceStockOnUpdate: true}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		_, err := f.engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{{ProductID: f.b.ID, Quantity: 1}})
		require.NoError(t, err)

		_, err = f.engine.ApplyUpdates(ctx, "s1", []cart.LineUpdate{{ProductID: f.b.ID, Quantity: 5}})
		require.ErrorIs(t, err, cart.ErrInsufficientStock)

		view, err := f.engine.ApplyUpdates(ctx, "s1", []cart.LineUpdate{{ProductID: f.b.ID, Quantity: 2}})
		require.NoError(t, err)
		require.Equal(t, map[int64]int{f.b.ID: 2}, quantities(view))
	})
}

func TestClearThenFetch(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		_, err := f.engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{{ProductID: f.a.ID, Quantity: 1}})
		require.NoError(t, err)

		require.NoError(t, f.engine.Clear(ctx, "s1"))

		_, err = f.engine.Fetch(ctx, "s1")
		require.ErrorIs(t, err, cart.ErrNotFound)
		require.ErrorIs(t, f.engine.Clear(ctx, "s1"), cart.ErrNotFound)

		// The session key is free again.
		view, err := f.engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{{ProductID: f.b.ID, Quantity: 1}})
		require.NoError(t, err)
		require.Equal(t, map[int64]int{f.b.ID: 1}, quantities(view))
	})
}

func TestConcurrentMergesOnOneSession(t *testing.T) {
	t.Parallel()
	forEachBackend(t, cart.Options{}, func(t *testing.T, f fixture) {
		ctx := context.Background()
		const workers = 8

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.engine.CreateOrMerge(ctx, "shared", []cart.LineRequest{{ProductID: f.a.ID, Quantity: 1}})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		view, err := f.engine.Fetch(ctx, "shared")
		require.NoError(t, err)
		require.Equal(t, map[int64]int{f.a.ID: workers}, quantities(view))
	})
}

func TestTotalUsesCurrentPrice(t *testing.T) {
	t.Parallel()
	repo := catalog.NewMemoryRepository()
	a, _ := seedProducts(t, repo)
	store, err := cart.NewMemoryStore(repo)
	require.NoError(t, err)
	engine, err := cart.NewEngine(store, cart.Options{})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{{ProductID: a.ID, Quantity: 2}})
	require.NoError(t, err)

	repo.Delete(a.ID)
	repriced := a
	repriced.Price = 15
	require.NoError(t, repo.Insert(ctx, &repriced))

	view, err := engine.Fetch(ctx, "s1")
	require.NoError(t, err)
	require.InDelta(t, 30.0, view.Total, 1e-9)
}

func TestDanglingProductIsInvariantViolation(t *testing.T) {
	t.Parallel()
	repo := catalog.NewMemoryRepository()
	a, _ := seedProducts(t, repo)
	store, err := cart.NewMemoryStore(repo)
	require.NoError(t, err)
	engine, err := cart.NewEngine(store, cart.Options{})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = engine.CreateOrMerge(ctx, "s1", []cart.LineRequest{{ProductID: a.ID, Quantity: 1}})
	require.NoError(t, err)

	repo.Delete(a.ID)
	_, err = engine.Fetch(ctx, "s1")
	require.ErrorIs(t, err, cart.ErrInvariant)
}
