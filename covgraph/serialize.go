package covgraph

import (
	"github.com/gogo/protobuf/proto"

	"github.com/martinghunt/gramtools/prg"
)

// Wire message types for coverage-graph serialization, following the
// teacher's biopb convention of small reflection-marshaled protobuf
// messages (field tags only, no protoc-generated Marshal/Unmarshal -- see
// DESIGN.md). Field order inside pbGraph matches the mandated
// serialization order from spec section 6: bubble map, then root/node
// arena, then parental map, then random access, then target map, then the
// nested flag -- so that deserializing a large nested graph never needs to
// recurse from the root before the flat bubble map is available.

type pbBubbleEntry struct {
	Start int32 `protobuf:"varint,1,opt,name=start"`
	End   int32 `protobuf:"varint,2,opt,name=end"`
}

func (*pbBubbleEntry) Reset()         {}
func (*pbBubbleEntry) ProtoMessage()  {}
func (m *pbBubbleEntry) String() string { return proto.CompactTextString(m) }

type pbNode struct {
	Sequence   []uint32 `protobuf:"varint,1,rep,name=sequence"`
	Site       uint32   `protobuf:"varint,2,opt,name=site"`
	Allele     uint32   `protobuf:"varint,3,opt,name=allele"`
	Pos        int64    `protobuf:"varint,4,opt,name=pos"`
	Coverage   []uint64 `protobuf:"varint,5,rep,name=coverage"`
	IsBoundary bool     `protobuf:"varint,6,opt,name=is_boundary"`
	Next       []int32  `protobuf:"varint,7,rep,name=next"`
}

func (*pbNode) Reset()          {}
func (*pbNode) ProtoMessage()   {}
func (m *pbNode) String() string { return proto.CompactTextString(m) }

type pbLocus struct {
	Site   uint32 `protobuf:"varint,1,opt,name=site"`
	Allele uint32 `protobuf:"varint,2,opt,name=allele"`
}

func (*pbLocus) Reset()          {}
func (*pbLocus) ProtoMessage()   {}
func (m *pbLocus) String() string { return proto.CompactTextString(m) }

type pbParentalEntry struct {
	Site   uint32   `protobuf:"varint,1,opt,name=site"`
	Parent *pbLocus `protobuf:"bytes,2,opt,name=parent"`
}

func (*pbParentalEntry) Reset()          {}
func (*pbParentalEntry) ProtoMessage()   {}
func (m *pbParentalEntry) String() string { return proto.CompactTextString(m) }

type pbNodeAccess struct {
	Node      int32    `protobuf:"varint,1,opt,name=node"`
	Offset    int64    `protobuf:"varint,2,opt,name=offset"`
	HasTarget bool     `protobuf:"varint,3,opt,name=has_target"`
	Target    *pbLocus `protobuf:"bytes,4,opt,name=target"`
}

func (*pbNodeAccess) Reset()          {}
func (*pbNodeAccess) ProtoMessage()   {}
func (m *pbNodeAccess) String() string { return proto.CompactTextString(m) }

type pbTargetedMarker struct {
	ID                   uint32   `protobuf:"varint,1,opt,name=id"`
	DirectDeletionAllele uint32   `protobuf:"varint,2,opt,name=direct_deletion_allele"`
	Kind                 int32    `protobuf:"varint,3,opt,name=kind"`
	Locus                *pbLocus `protobuf:"bytes,4,opt,name=locus"`
}

func (*pbTargetedMarker) Reset()          {}
func (*pbTargetedMarker) ProtoMessage()   {}
func (m *pbTargetedMarker) String() string { return proto.CompactTextString(m) }

type pbTargetEntry struct {
	From    uint32              `protobuf:"varint,1,opt,name=from"`
	Targets []*pbTargetedMarker `protobuf:"bytes,2,rep,name=targets"`
}

func (*pbTargetEntry) Reset()          {}
func (*pbTargetEntry) ProtoMessage()   {}
func (m *pbTargetEntry) String() string { return proto.CompactTextString(m) }

type pbGraph struct {
	BubbleMap    []*pbBubbleEntry   `protobuf:"bytes,1,rep,name=bubble_map"`
	Nodes        []*pbNode          `protobuf:"bytes,2,rep,name=nodes"`
	RootID       int32              `protobuf:"varint,3,opt,name=root_id"`
	ParentalMap  []*pbParentalEntry `protobuf:"bytes,4,rep,name=parental_map"`
	RandomAccess []*pbNodeAccess    `protobuf:"bytes,5,rep,name=random_access"`
	TargetMap    []*pbTargetEntry   `protobuf:"bytes,6,rep,name=target_map"`
	IsNested     bool               `protobuf:"varint,7,opt,name=is_nested"`
}

func (*pbGraph) Reset()          {}
func (*pbGraph) ProtoMessage()   {}
func (m *pbGraph) String() string { return proto.CompactTextString(m) }

func locusToPB(l prg.VariantLocus) *pbLocus {
	return &pbLocus{Site: l.Site, Allele: l.Allele}
}

func locusFromPB(l *pbLocus) prg.VariantLocus {
	if l == nil {
		return prg.VariantLocus{}
	}
	return prg.VariantLocus{Site: l.Site, Allele: l.Allele}
}

func toPB(g *Graph) *pbGraph {
	out := &pbGraph{RootID: int32(g.Root), IsNested: g.IsNested}

	for _, e := range g.BubbleMap {
		out.BubbleMap = append(out.BubbleMap, &pbBubbleEntry{Start: int32(e.Start), End: int32(e.End)})
	}
	for _, n := range g.nodes {
		next := make([]int32, len(n.Next))
		for i, id := range n.Next {
			next[i] = int32(id)
		}
		out.Nodes = append(out.Nodes, &pbNode{
			Sequence:   n.Sequence,
			Site:       n.Site,
			Allele:     n.Allele,
			Pos:        int64(n.Pos),
			Coverage:   n.Coverage,
			IsBoundary: n.IsBoundary,
			Next:       next,
		})
	}
	for site, parent := range g.ParentalMap {
		out.ParentalMap = append(out.ParentalMap, &pbParentalEntry{Site: site, Parent: locusToPB(parent)})
	}
	for _, a := range g.RandomAccess {
		out.RandomAccess = append(out.RandomAccess, &pbNodeAccess{
			Node:      int32(a.Node),
			Offset:    int64(a.Offset),
			HasTarget: a.HasTarget,
			Target:    locusToPB(a.Target),
		})
	}
	for from, targets := range g.TargetMap {
		entry := &pbTargetEntry{From: from}
		for _, t := range targets {
			entry.Targets = append(entry.Targets, &pbTargetedMarker{
				ID:                   t.ID,
				DirectDeletionAllele: t.DirectDeletionAllele,
				Kind:                 int32(t.Kind),
				Locus:                locusToPB(t.Locus),
			})
		}
		out.TargetMap = append(out.TargetMap, entry)
	}
	return out
}

func fromPB(in *pbGraph) *Graph {
	g := &Graph{
		Root:        NodeID(in.RootID),
		IsNested:    in.IsNested,
		ParentalMap: map[prg.Marker]prg.VariantLocus{},
		TargetMap:   map[prg.Marker][]TargetedMarker{},
	}
	for _, n := range in.Nodes {
		next := make([]NodeID, len(n.Next))
		for i, id := range n.Next {
			next[i] = NodeID(id)
		}
		g.nodes = append(g.nodes, Node{
			Sequence:   n.Sequence,
			Site:       n.Site,
			Allele:     n.Allele,
			Pos:        int(n.Pos),
			Coverage:   n.Coverage,
			IsBoundary: n.IsBoundary,
			Next:       next,
		})
	}
	for _, e := range in.BubbleMap {
		g.BubbleMap = append(g.BubbleMap, BubbleEntry{Start: NodeID(e.Start), End: NodeID(e.End)})
	}
	for _, e := range in.ParentalMap {
		g.ParentalMap[e.Site] = locusFromPB(e.Parent)
	}
	for _, a := range in.RandomAccess {
		g.RandomAccess = append(g.RandomAccess, NodeAccess{
			Node:      NodeID(a.Node),
			Offset:    int(a.Offset),
			HasTarget: a.HasTarget,
			Target:    locusFromPB(a.Target),
		})
	}
	for _, e := range in.TargetMap {
		targets := make([]TargetedMarker, len(e.Targets))
		for i, t := range e.Targets {
			targets[i] = TargetedMarker{
				ID:                   t.ID,
				DirectDeletionAllele: t.DirectDeletionAllele,
				Kind:                 TransitionKind(t.Kind),
				Locus:                locusFromPB(t.Locus),
			}
		}
		g.TargetMap[e.From] = targets
	}
	return g
}

// Serialize encodes g as a protobuf message, with the mandated field order
// (bubble map, root/nodes, parental map, random access, target map, nested
// flag) from spec section 6.
func Serialize(g *Graph) ([]byte, error) {
	return proto.Marshal(toPB(g))
}

// Deserialize decodes a Graph previously produced by Serialize.
func Deserialize(data []byte) (*Graph, error) {
	var in pbGraph
	if err := proto.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return fromPB(&in), nil
}
