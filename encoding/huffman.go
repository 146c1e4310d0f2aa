package encoding

import (
	"container/heap"

	"github.com/arloliu/gridstore/errs"
)

// Byte-symbol Huffman coding over the alphabet 0..255.
//
// Serialized form, written into a BitWriter:
//
//	8 bits   k-1, where k is the number of distinct symbols
//	1 bit    root flag; 1 selects the one-symbol special case
//	if flag == 1:
//	    8 bits   the single symbol
//	else, a pre-order walk of the code tree:
//	    1 bit    1 for a leaf, followed by the 8-bit symbol
//	             0 for an internal node, followed by its left then right child
//
// Symbols follow the tree as bit paths from root to leaf, left = 0. There is
// no end-of-stream marker; the decoder is told how many symbols to read.

type huffNode struct {
	symbol int // -1 for internal nodes
	count  int
	low    int // lowest symbol beneath this node, for deterministic ordering
	left   *huffNode
	right  *huffNode
}

type huffHeap []*huffNode

func (h huffHeap) Len() int { return len(h) }
func (h huffHeap) Less(i, j int) bool {
	if h[i].count != h[j].count {
		return h[i].count < h[j].count
	}

	return h[i].low < h[j].low
}
func (h huffHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *huffHeap) Push(x any) { *h = append(*h, x.(*huffNode)) }

func (h *huffHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	*h = old[:n-1]

	return node
}

func buildHuffTree(counts *[256]int) *huffNode {
	h := make(huffHeap, 0, 256)
	for sym, count := range counts {
		if count > 0 {
			h = append(h, &huffNode{symbol: sym, count: count, low: sym})
		}
	}
	heap.Init(&h)

	if len(h) == 1 {
		return h[0]
	}

	for len(h) > 1 {
		a := heap.Pop(&h).(*huffNode)
		b := heap.Pop(&h).(*huffNode)
		low := a.low
		if b.low < low {
			low = b.low
		}
		heap.Push(&h, &huffNode{symbol: -1, count: a.count + b.count, low: low, left: a, right: b})
	}

	return h[0]
}

// HuffmanEncoder compresses a byte sequence into a BitWriter.
type HuffmanEncoder struct{}

// Encode writes the serialized code tree followed by the coded symbols.
// The input must be non-empty.
func (HuffmanEncoder) Encode(symbols []byte, w *BitWriter) error {
	if len(symbols) == 0 {
		return errs.ErrNotEncodable
	}

	var counts [256]int
	nSymbols := 0
	for _, s := range symbols {
		if counts[s] == 0 {
			nSymbols++
		}
		counts[s]++
	}

	w.AppendByte(byte(nSymbols - 1))

	if nSymbols == 1 {
		w.AppendBit(1)
		w.AppendByte(symbols[0])

		return nil
	}

	root := buildHuffTree(&counts)
	w.AppendBit(0)
	writeHuffTree(root, w)

	var codes [256]uint32
	var lengths [256]int
	assignHuffCodes(root, 0, 0, &codes, &lengths)

	for _, s := range symbols {
		n := lengths[s]
		code := codes[s]
		// Emit the path from root to leaf, most significant path bit first.
		for i := n - 1; i >= 0; i-- {
			w.AppendBit((code >> i) & 1)
		}
	}

	return nil
}

func writeHuffTree(node *huffNode, w *BitWriter) {
	if node.symbol >= 0 {
		w.AppendBit(1)
		w.AppendByte(byte(node.symbol))

		return
	}
	w.AppendBit(0)
	writeHuffTree(node.left, w)
	writeHuffTree(node.right, w)
}

func assignHuffCodes(node *huffNode, code uint32, depth int, codes *[256]uint32, lengths *[256]int) {
	if node.symbol >= 0 {
		codes[node.symbol] = code
		lengths[node.symbol] = depth

		return
	}
	assignHuffCodes(node.left, code<<1, depth+1, codes, lengths)
	assignHuffCodes(node.right, code<<1|1, depth+1, codes, lengths)
}

// HuffmanDecoder reconstructs the byte sequence coded by HuffmanEncoder.
type HuffmanDecoder struct {
	root     *huffNode
	single   int // the symbol of the one-symbol special case, or -1
	treeBits int
}

// NewHuffmanDecoder creates a decoder with no tree loaded.
func NewHuffmanDecoder() *HuffmanDecoder {
	return &HuffmanDecoder{single: -1}
}

// DecodeTree reads the serialized code tree and records the number of bits
// it consumed, so higher layers can track tree overhead.
func (d *HuffmanDecoder) DecodeTree(r *BitReader) error {
	start := r.Position()
	d.root = nil
	d.single = -1

	nSymbols, err := r.GetByte()
	if err != nil {
		return err
	}

	rootFlag, err := r.GetBit()
	if err != nil {
		return err
	}

	if rootFlag == 1 {
		if nSymbols != 0 {
			return errs.ErrMalformedHuffmanTree
		}
		sym, err := r.GetByte()
		if err != nil {
			return err
		}
		d.single = int(sym)
		d.treeBits = r.Position() - start

		return nil
	}

	root, err := readHuffTree(r, 0)
	if err != nil {
		return err
	}
	d.root = root
	d.treeBits = r.Position() - start

	return nil
}

func readHuffTree(r *BitReader, depth int) (*huffNode, error) {
	if depth > 256 {
		return nil, errs.ErrMalformedHuffmanTree
	}

	leaf, err := r.GetBit()
	if err != nil {
		return nil, err
	}

	if leaf == 1 {
		sym, err := r.GetByte()
		if err != nil {
			return nil, err
		}

		return &huffNode{symbol: int(sym)}, nil
	}

	left, err := readHuffTree(r, depth+1)
	if err != nil {
		return nil, err
	}
	right, err := readHuffTree(r, depth+1)
	if err != nil {
		return nil, err
	}

	return &huffNode{symbol: -1, left: left, right: right}, nil
}

// Decode reads the next symbol.
func (d *HuffmanDecoder) Decode(r *BitReader) (byte, error) {
	if d.single >= 0 {
		return byte(d.single), nil
	}
	if d.root == nil {
		return 0, errs.ErrMalformedHuffmanTree
	}

	node := d.root
	for node.symbol < 0 {
		bit, err := r.GetBit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			node = node.left
		} else {
			node = node.right
		}
	}

	return byte(node.symbol), nil
}

// DecodeBlock reads n symbols into a freshly allocated slice.
func (d *HuffmanDecoder) DecodeBlock(r *BitReader, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		sym, err := d.Decode(r)
		if err != nil {
			return nil, err
		}
		out[i] = sym
	}

	return out, nil
}

// TreeBitCount returns the number of bits the serialized tree occupied.
func (d *HuffmanDecoder) TreeBitCount() int {
	return d.treeBits
}
