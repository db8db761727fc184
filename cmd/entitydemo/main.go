// Command entitydemo walks through the entity repository against the
// configured database: cached reads, notified writes with cache
// invalidation, soft delete, paging and truncation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-entity/entity"
	"github.com/goliatone/go-repository-entity/entityrepo"
	"github.com/goliatone/go-repository-entity/events"
	"github.com/goliatone/go-repository-entity/pkg/config"
	"github.com/goliatone/go-repository-entity/pkg/di"
	"github.com/goliatone/go-repository-entity/pkg/logging"
	"github.com/goliatone/go-repository-entity/table"
)

// News is soft deleted: Delete flags the row instead of removing it.
type News struct {
	bun.BaseModel `bun:"table:news"`
	entity.Base
	entity.SoftDelete
	Title     string    `bun:"title,notnull" json:"title"`
	Published time.Time `bun:"published,nullzero" json:"published"`
}

// Comment rows are removed physically.
type Comment struct {
	bun.BaseModel `bun:"table:comments"`
	entity.Base
	NewsID int64  `bun:"news_id,notnull" json:"news_id"`
	Body   string `bun:"body,notnull" json:"body"`
}

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("demo failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	fmt.Println("📦 Step 1: Setting up the container...")
	container, err := di.NewContainer(cfg, di.WithLogger(logger))
	if err != nil {
		return err
	}
	defer container.Close()

	if err := container.CreateTables(ctx, (*News)(nil), (*Comment)(nil)); err != nil {
		return err
	}

	go func() {
		if err := container.ListenRemote(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("remote invalidation stopped", zap.Error(err))
		}
	}()

	container.Dispatcher().Subscribe(events.AllEntities, events.HandlerFunc(func(ctx context.Context, evt events.Event) error {
		fmt.Printf("   📣 %s %s #%d\n", evt.Kind, evt.EntityType, evt.EntityID)
		return nil
	}))

	news := di.NewRepository[*News](container)
	comments := di.NewRepository[*Comment](container)
	fmt.Printf("   ✅ Repositories ready: %s (soft delete: %t), %s\n",
		news.Namespace(), news.SoftDeletes(), comments.Namespace())
	fmt.Println()

	fmt.Println("✏️  Step 2: Inserting rows...")
	batch := []*News{
		{Title: "Release 1.0", Published: time.Now()},
		{Title: "Security advisory"},
		{Title: "Roadmap"},
	}
	if err := news.InsertMany(ctx, batch, true); err != nil {
		return err
	}
	for _, n := range batch {
		if err := comments.Insert(ctx, &Comment{NewsID: n.ID, Body: "first!"}, false); err != nil {
			return err
		}
	}
	fmt.Println()

	fmt.Println("🔍 Step 3: Cached reads...")
	for i := 0; i < 2; i++ {
		start := time.Now()
		n, err := news.GetByID(ctx, batch[0].ID, entityrepo.DefaultCacheKey)
		if err != nil {
			return err
		}
		fmt.Printf("   GetByID(%d) = %q (took %v)\n", n.ID, n.Title, time.Since(start))
	}
	ordered, err := news.GetByIDs(ctx, []int64{batch[2].ID, batch[0].ID}, entityrepo.DefaultCacheKey)
	if err != nil {
		return err
	}
	for _, n := range ordered {
		fmt.Printf("   GetByIDs -> #%d %q\n", n.ID, n.Title)
	}
	fmt.Println()

	fmt.Println("🗑️  Step 4: Soft delete and invalidation...")
	if err := news.Delete(ctx, batch[1], true); err != nil {
		return err
	}
	visible, err := news.GetAll(ctx, nil, entityrepo.DefaultCacheKey)
	if err != nil {
		return err
	}
	everything, err := news.GetAll(ctx, nil, entityrepo.DefaultCacheKey, entityrepo.IncludeDeleted())
	if err != nil {
		return err
	}
	fmt.Printf("   %d visible, %d including deleted\n", len(visible), len(everything))

	original, err := news.LoadOriginalCopy(ctx, batch[1])
	if err != nil {
		return err
	}
	fmt.Printf("   stored copy of #%d deleted=%t\n", original.ID, original.IsDeleted())
	fmt.Println()

	fmt.Println("📋 Step 5: Paging...")
	newestFirst := func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.id DESC")
	}
	page, err := news.GetAllPaged(ctx, newestFirst, 0, 1, false)
	if err != nil {
		return err
	}
	fmt.Printf("   page %d/%d holds %d of %d rows (next: %t)\n",
		page.PageIndex+1, page.TotalPages(), len(page.Items), page.TotalCount, page.HasNextPage())
	fmt.Println()

	fmt.Println("🧹 Step 6: Bulk removal...")
	removed, err := comments.DeleteWhere(ctx, func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("news_id = ?", batch[1].ID)
	})
	if err != nil {
		return err
	}
	fmt.Printf("   DeleteWhere removed %d comments\n", removed)

	switch recent, err := news.ExecuteStoredProcedure(ctx, "recent_news", 10); {
	case errors.Is(err, table.ErrProceduresUnsupported):
		fmt.Println("   stored procedures are not supported by this database")
	case err != nil:
		// the function is optional, create it to see results here
		logger.Info("recent_news unavailable", zap.Error(err))
	default:
		fmt.Printf("   recent_news returned %d rows\n", len(recent))
	}

	if err := comments.Truncate(ctx, true); err != nil {
		return err
	}
	if err := comments.InvalidateCache(ctx); err != nil {
		return err
	}
	left, err := comments.GetAll(ctx, nil, nil)
	if err != nil {
		return err
	}
	fmt.Printf("   %d comments after truncate\n", len(left))
	fmt.Println()

	fmt.Println("✅ Done")
	return nil
}
