// Package seed populates a CRM database with demo contacts and notes.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rolodexhq/rolodex/internal/platform/cmd"
	"github.com/rolodexhq/rolodex/internal/services/crm/queries"
	"github.com/rolodexhq/rolodex/internal/services/crm/storage"
	crmsqlite "github.com/rolodexhq/rolodex/internal/services/crm/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath   string `env:"ROLODEX_CRM_DB_PATH" envDefault:"data/crm.db"`
	Owners   int
	Contacts int
	Seed     int64
	Verbose  bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the CRM SQLite database")
	fs.IntVar(&cfg.Owners, "owners", 2, "number of demo owners")
	fs.IntVar(&cfg.Contacts, "contacts", 10, "number of contacts per owner")
	fs.Int64Var(&cfg.Seed, "seed", 0, "random seed for reproducibility (0 = time-based)")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var firstNames = []string{
	"Ada", "Grace", "Alan", "Edsger", "Barbara", "Donald", "Frances", "John",
	"Radia", "Katherine", "Dennis", "Margaret",
}

var lastNames = []string{
	"Lovelace", "Hopper", "Turing", "Dijkstra", "Liskov", "Knuth", "Allen",
	"Backus", "Perlman", "Johnson", "Ritchie", "Hamilton",
}

var companies = []string{
	"Analytical Engines", "Harbor Systems", "Bluebird Labs", "Northwind",
	"Meridian Works", "Cascade Software",
}

var tagPool = []string{"vip", "lead", "engineering", "press", "investor"}

var noteBodies = []string{
	"met at the symposium",
	"asked for a follow-up next quarter",
	"prefers email over phone",
	"introduced by a mutual contact",
}

// Run seeds the database at cfg.DBPath with demo data. Owners are seeded
// concurrently; contacts within one owner are created sequentially so note
// attachment stays ordered.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.Owners <= 0 || cfg.Contacts <= 0 {
		return fmt.Errorf("owners and contacts must be positive")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	store, err := crmsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open crm store at %s: %w", cfg.DBPath, err)
	}
	defer store.Close()

	q, err := queries.New(store)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for ownerIndex := 0; ownerIndex < cfg.Owners; ownerIndex++ {
		ownerID := fmt.Sprintf("demo-owner-%d", ownerIndex+1)
		rng := rand.New(rand.NewSource(seed + int64(ownerIndex)))
		group.Go(func() error {
			return seedOwner(groupCtx, q, rng, ownerID, cfg.Contacts)
		})
		if cfg.Verbose {
			fmt.Fprintf(out, "seeding %s with %d contacts\n", ownerID, cfg.Contacts)
		}
	}
	if err := group.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(out, "seeded %d owners with %d contacts each (seed %d)\n", cfg.Owners, cfg.Contacts, seed)
	return nil
}

func seedOwner(ctx context.Context, q *queries.Queries, rng *rand.Rand, ownerID string, contacts int) error {
	for i := 0; i < contacts; i++ {
		first := firstNames[rng.Intn(len(firstNames))]
		last := lastNames[rng.Intn(len(lastNames))]
		name := first + " " + last
		email := fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), i)

		contact, err := q.CreateContact(ctx, storage.Contact{
			OwnerID: ownerID,
			Name:    name,
			Email:   email,
			Company: companies[rng.Intn(len(companies))],
			Tags:    pickTags(rng),
		})
		if err != nil {
			return fmt.Errorf("seed contact for %s: %w", ownerID, err)
		}

		noteCount := rng.Intn(3)
		for n := 0; n < noteCount; n++ {
			if _, err := q.AddNote(ctx, storage.Note{
				OwnerID:   ownerID,
				ContactID: contact.ID,
				Body:      noteBodies[rng.Intn(len(noteBodies))],
			}); err != nil {
				return fmt.Errorf("seed note for %s: %w", contact.ID, err)
			}
		}
	}
	return nil
}

func pickTags(rng *rand.Rand) []string {
	count := rng.Intn(3)
	if count == 0 {
		return nil
	}
	tags := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(tags) < count {
		tag := tagPool[rng.Intn(len(tagPool))]
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
