package policy

import (
	"log/slog"
	"time"

	"github.com/ecclesia-app/ecclesia-access/internal/rules"
)

// firstSatisfied evaluates matched rules in precedence order and
// returns the first whose condition holds at the given instant.
// Rules whose stored condition no longer parses are skipped: an
// unparseable predicate must never widen access nor crash the
// decision path.
func firstSatisfied(list []rules.Rule, at time.Time, logger *slog.Logger) *rules.Rule {
	rules.SortForEvaluation(list)
	for i := range list {
		rule := &list[i]
		cond, err := rules.ParseCondition(rule.Condition)
		if err != nil {
			if logger != nil {
				logger.Warn("skip rule with malformed condition",
					slog.String("rule_id", rule.ID.String()),
					slog.Any("error", err))
			}
			continue
		}
		if cond.Satisfied(at) {
			return rule
		}
	}
	return nil
}
