package main

// The 12 winning lines of a 5x5 card, indexed row-major: rows top to
// bottom, then columns left to right, then the two diagonals. Validation
// reports the first satisfied line in this order, so the tie-break is
// deterministic and shared with the client.

type cardLine struct {
	kind    string
	indices []int
}

var cardLines = buildLines()

func buildLines() []cardLine {
	lines := make([]cardLine, 0, 12)
	for r := 0; r < 5; r++ {
		idxs := make([]int, 5)
		for c := 0; c < 5; c++ {
			idxs[c] = r*5 + c
		}
		lines = append(lines, cardLine{kind: "row", indices: idxs})
	}
	for c := 0; c < 5; c++ {
		idxs := make([]int, 5)
		for r := 0; r < 5; r++ {
			idxs[r] = r*5 + c
		}
		lines = append(lines, cardLine{kind: "col", indices: idxs})
	}
	lines = append(lines,
		cardLine{kind: "diag", indices: []int{0, 6, 12, 18, 24}},
		cardLine{kind: "diag", indices: []int{4, 8, 12, 16, 20}},
	)
	return lines
}

type lineResult struct {
	valid    bool
	lineType string
	indices  []int
}

// validateCard scans the fixed line enumeration and returns the first
// line whose every cell is either the free space or called.
func validateCard(card []string, called map[string]bool) lineResult {
	if len(card) != 25 {
		return lineResult{indices: []int{}}
	}
	for _, line := range cardLines {
		ok := true
		for _, i := range line.indices {
			if card[i] != freeCell && !called[card[i]] {
				ok = false
				break
			}
		}
		if ok {
			indices := make([]int, len(line.indices))
			copy(indices, line.indices)
			return lineResult{valid: true, lineType: line.kind, indices: indices}
		}
	}
	return lineResult{indices: []int{}}
}
