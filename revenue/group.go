package revenue

import "sort"

// =============================================================================
// GROUPING - Rebuild nested records from flat relational reads
// =============================================================================
//
// Stores return joins as flat rows (one row per child, or one row with no
// child for parents without children). The functions below fold those rows
// back into parents, keeping the order in which parents first appear.

// ClientRow is one row of a client LEFT JOIN associations read.
// Association is nil when the client has no associations.
type ClientRow struct {
	Client      Client
	Association *ClientProductAssociation
}

// GroupClientRows folds client rows into clients with their associations.
func GroupClientRows(rows []ClientRow) []Client {
	index := make(map[ClientID]int)
	clients := make([]Client, 0)

	for _, row := range rows {
		i, seen := index[row.Client.ID]
		if !seen {
			c := row.Client
			c.Associations = []ClientProductAssociation{}
			clients = append(clients, c)
			i = len(clients) - 1
			index[c.ID] = i
		}
		if row.Association != nil {
			clients[i].Associations = append(clients[i].Associations, *row.Association)
		}
	}
	return clients
}

// EventRow is one row of a revenue event LEFT JOIN product fees read.
// Fee is nil when the event has no fee breakdown.
type EventRow struct {
	Event RevenueEvent
	Fee   *ProductFee
}

// GroupEventRows folds event rows into events with their fee breakdowns.
func GroupEventRows(rows []EventRow) []RevenueEvent {
	index := make(map[EventID]int)
	events := make([]RevenueEvent, 0)

	for _, row := range rows {
		i, seen := index[row.Event.ID]
		if !seen {
			e := row.Event
			e.Fees = []ProductFee{}
			events = append(events, e)
			i = len(events) - 1
			index[e.ID] = i
		}
		if row.Fee != nil {
			events[i].Fees = append(events[i].Fees, *row.Fee)
		}
	}
	return events
}

// MonthlyStat is one period's totals for a line.
type MonthlyStat struct {
	Period Period
	Totals Totals
}

// GroupByPeriod aggregates events into per-period totals, newest first.
func GroupByPeriod(events []RevenueEvent, f Filter) []MonthlyStat {
	buckets := make(map[Period][]RevenueEvent)
	var order []Period
	for _, e := range events {
		if !f.Match(e) {
			continue
		}
		p := PeriodOf(e.Date)
		if _, ok := buckets[p]; !ok {
			order = append(order, p)
		}
		buckets[p] = append(buckets[p], e)
	}

	stats := make([]MonthlyStat, 0, len(order))
	for _, p := range order {
		stats = append(stats, MonthlyStat{Period: p, Totals: Aggregate(buckets[p], Filter{})})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Period.String() > stats[j].Period.String()
	})
	return stats
}
