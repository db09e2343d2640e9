package discovery

import (
	"github.com/vectorgrp/sil-kit-sub002/addressing"
)

// filterKey is (controllerType, topicOrFunctionName) — the only lookup
// key the specific store indexes on (spec §4.4). Only three
// controllerType values are ever indexed; everything else only ever goes
// through the generic handler list in discovery.go.
type filterKey struct {
	controllerType string
	key            string
}

// labelKey is (labelKey, labelValue) for the exact-match label bucket.
type labelKey struct {
	key   string
	value string
}

// cluster holds the services and handlers that currently fall into one
// bucket. Handlers are stored as pointers so a removed handler can be
// nilled out in place without disturbing a concurrent range over the
// slice (mirrors the original's shared_ptr-reset-on-remove trick, spec
// §4.4's closing note).
type cluster struct {
	nodes    []addressing.ServiceDescriptor
	handlers []*Handler
}

// keyNode is the per-filter bucket set: spec §4.4's DiscoveryKeyNode.
type keyNode struct {
	allCluster     cluster
	noLabelCluster cluster
	labelMap       map[labelKey]*cluster
	notLabelMap    map[string]*cluster
}

func newKeyNode() *keyNode {
	return &keyNode{
		labelMap:    make(map[labelKey]*cluster),
		notLabelMap: make(map[string]*cluster),
	}
}

func (n *keyNode) labelCluster(k labelKey) *cluster {
	c, ok := n.labelMap[k]
	if !ok {
		c = &cluster{}
		n.labelMap[k] = c
	}
	return c
}

func (n *keyNode) notLabelCluster(key string) (*cluster, bool) {
	c, ok := n.notLabelMap[key]
	if !ok {
		c = &cluster{}
		n.notLabelMap[key] = c
		return c, true // first time this label key is seen
	}
	return c, false
}

// SpecificDiscoveryStore is the two-level bucketed index described in
// spec §4.4, grounded directly on
// SilKit/source/core/service/SpecificDiscoveryStore.cpp. It must only
// ever be called with C3's discovery lock already held (spec §5).
type SpecificDiscoveryStore struct {
	lookup map[filterKey]*keyNode
}

// NewSpecificDiscoveryStore returns an empty store.
func NewSpecificDiscoveryStore() *SpecificDiscoveryStore {
	return &SpecificDiscoveryStore{lookup: make(map[filterKey]*keyNode)}
}

func (s *SpecificDiscoveryStore) node(fk filterKey) *keyNode {
	n, ok := s.lookup[fk]
	if !ok {
		n = newKeyNode()
		s.lookup[fk] = n
	}
	return n
}

// updateClusters is the common insertion path for both a new service
// (InsertNode) and a new handler (InsertHandler). Order matters: first,
// for every label key of the thing being inserted that has never been
// seen before for this filter, notLabelMap[key] is backfilled with
// everything already stored (before this insertion) — those earlier
// entries lacked a key they never declared, so they are retroactively
// "not labeled" for it. Only then is the new node/handler itself applied
// to allCluster and to whichever labelMap/notLabelMap buckets it belongs
// in (spec §4.4 / original UpdateDiscoveryClusters).
func (s *SpecificDiscoveryStore) updateClusters(fk filterKey, labels []addressing.MatchingLabel, apply func(*cluster)) {
	n := s.node(fk)

	if len(labels) == 0 {
		apply(&n.allCluster)
		apply(&n.noLabelCluster)
		return
	}

	for _, l := range labels {
		n.labelCluster(labelKey{key: l.Key, value: l.Value}) // ensure the bucket exists
		if _, alreadySeen := n.notLabelMap[l.Key]; alreadySeen {
			continue
		}
		backfill := &cluster{
			nodes:    append([]addressing.ServiceDescriptor(nil), n.allCluster.nodes...),
			handlers: append([]*Handler(nil), n.allCluster.handlers...),
		}
		n.notLabelMap[l.Key] = backfill
	}

	apply(&n.allCluster)

	for key, notLabel := range n.notLabelMap {
		matchedValue, matched := "", false
		for _, l := range labels {
			if l.Key == key {
				matchedValue, matched = l.Value, true
				break
			}
		}
		if matched {
			apply(n.labelCluster(labelKey{key: key, value: matchedValue}))
		} else {
			apply(notLabel)
		}
	}
}

// InsertNode records a newly created service under (controllerType, key,
// labels).
func (s *SpecificDiscoveryStore) InsertNode(controllerType, key string, labels []addressing.MatchingLabel, descriptor addressing.ServiceDescriptor) {
	s.updateClusters(filterKey{controllerType, key}, labels, func(c *cluster) {
		c.nodes = append(c.nodes, descriptor)
	})
}

// RemoveNode erases descriptor from every bucket under (controllerType,
// key). nodes shrink in place.
func (s *SpecificDiscoveryStore) RemoveNode(controllerType, key string, descriptor addressing.ServiceDescriptor) {
	n, ok := s.lookup[filterKey{controllerType, key}]
	if !ok {
		return
	}
	removeFrom := func(c *cluster) {
		out := c.nodes[:0]
		for _, d := range c.nodes {
			if !d.Equal(descriptor) {
				out = append(out, d)
			}
		}
		c.nodes = out
	}
	removeFrom(&n.allCluster)
	removeFrom(&n.noLabelCluster)
	for _, c := range n.notLabelMap {
		removeFrom(c)
	}
	for _, c := range n.labelMap {
		removeFrom(c)
	}
}

// InsertHandler records a newly registered handler under (controllerType,
// key, labels).
func (s *SpecificDiscoveryStore) InsertHandler(controllerType, key string, labels []addressing.MatchingLabel, handler Handler) {
	h := &handler
	s.updateClusters(filterKey{controllerType, key}, labels, func(c *cluster) {
		c.handlers = append(c.handlers, h)
	})
}

// greedyHandlerLabel picks, among labels, the one whose matching handler
// bucket is smallest — the "greedy minimum" strategy from spec §4.4 used
// when a new service arrives and the store must decide which handlers to
// notify.
func greedyHandlerLabel(n *keyNode, labels []addressing.MatchingLabel) *addressing.MatchingLabel {
	matchCount := len(n.allCluster.handlers)
	var out *addressing.MatchingLabel
	for i := range labels {
		if matchCount == 0 {
			break
		}
		l := &labels[i]
		switch l.Kind {
		case addressing.LabelKindMandatory:
			count := len(n.labelCluster(labelKey{l.Key, l.Value}).handlers)
			if count < matchCount {
				matchCount = count
				out = l
			}
		case addressing.LabelKindOptional:
			fit := n.labelCluster(labelKey{l.Key, l.Value})
			notLabel, _ := n.notLabelCluster(l.Key)
			count := len(fit.handlers) + len(notLabel.handlers)
			if count < matchCount {
				matchCount = count
				out = l
			}
		}
	}
	return out
}

// greedyNodeLabel is the symmetric counterpart used when a new handler is
// registered and the store must decide which already-known services to
// replay against it.
func greedyNodeLabel(n *keyNode, labels []addressing.MatchingLabel) *addressing.MatchingLabel {
	matchCount := len(n.allCluster.nodes)
	var out *addressing.MatchingLabel
	for i := range labels {
		if matchCount == 0 {
			break
		}
		l := &labels[i]
		switch l.Kind {
		case addressing.LabelKindMandatory:
			count := len(n.labelCluster(labelKey{l.Key, l.Value}).nodes)
			if count < matchCount {
				matchCount = count
				out = l
			}
		case addressing.LabelKindOptional:
			fit := n.labelCluster(labelKey{l.Key, l.Value})
			notLabel, _ := n.notLabelCluster(l.Key)
			count := len(fit.nodes) + len(notLabel.nodes)
			if count < matchCount {
				matchCount = count
				out = l
			}
		}
	}
	return out
}

// NotifyHandlersOnServiceChange fires every handler that should observe
// eventType for descriptor, using the greedy-minimum-bucket strategy, and
// (for ServiceCreated) records the descriptor in the index.
func (s *SpecificDiscoveryStore) NotifyHandlersOnServiceChange(eventType EventType, controllerType, key string, labels []addressing.MatchingLabel, descriptor addressing.ServiceDescriptor) {
	n := s.node(filterKey{controllerType, key})
	greedy := greedyHandlerLabel(n, labels)

	fire := func(c *cluster) {
		for _, h := range c.handlers {
			if h != nil {
				(*h)(eventType, descriptor)
			}
		}
	}

	if greedy == nil {
		fire(&n.allCluster)
	} else {
		if greedy.Kind == addressing.LabelKindOptional {
			notLabel, _ := n.notLabelCluster(greedy.Key)
			fire(notLabel)
			fire(&n.noLabelCluster)
		}
		fire(n.labelCluster(labelKey{greedy.Key, greedy.Value}))
	}

	switch eventType {
	case EventServiceCreated:
		s.InsertNode(controllerType, key, labels, descriptor)
	case EventServiceRemoved:
		s.RemoveNode(controllerType, key, descriptor)
	}
}

// ReplayToNewHandler is invoked when a new specific handler registers: it
// replays ServiceCreated for exactly the already-known services the
// greedy-minimum bucket implies, then records the handler.
func (s *SpecificDiscoveryStore) ReplayToNewHandler(controllerType, key string, labels []addressing.MatchingLabel, handler Handler) {
	n := s.node(filterKey{controllerType, key})
	greedy := greedyNodeLabel(n, labels)

	fire := func(c *cluster) {
		for _, d := range c.nodes {
			handler(EventServiceCreated, d)
		}
	}

	if greedy == nil {
		fire(&n.allCluster)
	} else {
		if greedy.Kind == addressing.LabelKindOptional {
			notLabel, _ := n.notLabelCluster(greedy.Key)
			fire(notLabel)
			fire(&n.noLabelCluster)
		}
		fire(n.labelCluster(labelKey{greedy.Key, greedy.Value}))
	}

	s.InsertHandler(controllerType, key, labels, handler)
}
