package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rshade/cowtracker/internal/cache"
)

func newCacheCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local cache",
	}
	cmd.AddCommand(
		newCacheStatsCmd(s),
		newCacheKeysCmd(s),
		newCacheClearCmd(s),
		newCacheCleanupCmd(s),
		newCacheInvalidateCmd(s),
		newCacheWarmCmd(s),
		newCacheJanitorCmd(s),
	)
	return cmd
}

// cacheStatsView is the JSON shape of cache stats.
type cacheStatsView struct {
	Enabled   bool    `json:"enabled"`
	Backend   string  `json:"backend"`
	Entries   int     `json:"entries"`
	Fresh     int     `json:"fresh"`
	Stale     int     `json:"stale"`
	Pending   int     `json:"pending"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Coalesced uint64  `json:"coalesced"`
	HitRate   float64 `json:"hitRate"`
}

func newCacheStatsCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts and hit rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := s.cache.Stats()
			view := cacheStatsView{
				Enabled:   s.cache.Enabled(),
				Backend:   s.cfg.Storage.Backend,
				Entries:   st.EntryCount,
				Fresh:     st.FreshCount,
				Stale:     st.StaleCount,
				Pending:   st.Pending,
				Hits:      st.Hits,
				Misses:    st.Misses,
				Coalesced: st.Coalesced,
			}
			if lookups := st.Hits + st.Misses; lookups > 0 {
				view.HitRate = float64(st.Hits) / float64(lookups)
			}

			return s.output(cmd, view, func() error {
				enabled := "yes"
				if !view.Enabled {
					enabled = "no (--no-cache or cache.enabled: false)"
				}
				return renderDetail(cmd.OutOrStdout(), "Cache", []field{
					{"Enabled", enabled},
					{"Backend", view.Backend},
					{"Entries", formatInt(view.Entries)},
					{"Fresh", formatInt(view.Fresh)},
					{"Stale", formatInt(view.Stale)},
					{"Hits", humanize.Comma(int64(view.Hits))},
					{"Misses", humanize.Comma(int64(view.Misses))},
					{"Coalesced", humanize.Comma(int64(view.Coalesced))},
					{"Hit rate", printer.Sprintf("%.0f%%", view.HitRate*100)},
				})
			})
		},
	}
}

// cacheEntryView is the JSON shape of one cache entry.
type cacheEntryView struct {
	Key       string    `json:"key"`
	Category  string    `json:"category"`
	StoredAt  time.Time `json:"storedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	TTL       string    `json:"ttl"`
	Fresh     bool      `json:"fresh"`
}

func newCacheKeysCmd(s *session) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List cached keys with their age and expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := s.cache.Now()
			views := []cacheEntryView{}
			for _, key := range s.cache.Keys() {
				if pattern != "" && !cache.MatchPattern(key, pattern) {
					continue
				}
				e, ok := s.cache.Peek(key)
				if !ok {
					continue
				}
				views = append(views, cacheEntryView{
					Key:       e.Key,
					Category:  cache.Category(e.Key),
					StoredAt:  e.StoredAt,
					ExpiresAt: e.ExpiresAt(),
					TTL:       cache.FormatDuration(e.TTL),
					Fresh:     e.Fresh(now),
				})
			}

			return s.output(cmd, views, func() error {
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty.")
					return nil
				}
				return renderCacheKeys(cmd.OutOrStdout(), views, now)
			})
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "only list keys under this prefix, e.g. cattle or farm:id=f1")
	return cmd
}

func renderCacheKeys(w io.Writer, views []cacheEntryView, now time.Time) error {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		state := "fresh"
		if !v.Fresh {
			state = "stale"
		}
		rows = append(rows, []string{
			v.Key,
			v.TTL,
			humanize.RelTime(v.StoredAt, now, "ago", "from now"),
			humanize.RelTime(v.ExpiresAt, now, "ago", "from now"),
			state,
		})
	}
	return renderTable(w, []string{"Key", "TTL", "Stored", "Expires", "State"}, rows)
}

func newCacheClearCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry, in memory and on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := len(s.cache.Keys())
			s.cache.Clear(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s cached %s.\n", formatInt(n), plural(n, "entry", "entries"))
			return nil
		},
	}
}

func newCacheCleanupCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := s.cache.CleanupExpired(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s expired %s.\n", formatInt(n), plural(n, "entry", "entries"))
			return nil
		},
	}
}

func newCacheInvalidateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <pattern>",
		Short: "Drop every entry under a key prefix",
		Example: `  # Drop all cattle lists and animals
  cowtracker cache invalidate cattle

  # Drop one farm's cattle list
  cowtracker cache invalidate cattle:farm=f1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cache.ValidateKey(args[0]); err != nil {
				return err
			}
			n := s.cache.Invalidate(cmd.Context(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s %s matching %q.\n",
				formatInt(n), plural(n, "entry", "entries"), args[0])
			return nil
		},
	}
}

func newCacheWarmCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Prefetch farms, cattle, the current user and the herd report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			if err := s.service.Warm(cmd.Context()); err != nil {
				return err
			}
			n := s.cache.Stats().EntryCount
			fmt.Fprintf(cmd.OutOrStdout(), "Cache warmed: %s %s in %s.\n",
				formatInt(n), plural(n, "entry", "entries"), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
