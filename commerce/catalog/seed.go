package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// SeedFromFile inserts the products listed in a JSON array file when the
// catalog is empty. It returns the number of products inserted.
func SeedFromFile(ctx context.Context, repo Repository, path string) (int, error) {
	n, err := repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Ctx(ctx).Debug().Int("existing", n).Msg("catalog already seeded")
		return 0, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}

	inserted := 0
	for i := range products {
		p := products[i]
		p.ID = 0
		if err := repo.Insert(ctx, &p); err != nil {
			return inserted, fmt.Errorf("seed product %q: %w", p.ExternalID, err)
		}
		inserted++
	}

	log.Ctx(ctx).Info().Int("inserted", inserted).Str("path", path).Msg("catalog seeded")
	return inserted, nil
}
