package cpu

import "fmt"

// GPU is the dual-buffer bit-plane unit spec §3/§4.2 describes: two
// 32-row buffers of 32-bit words, a 32-slot sprite table, a 16384-slot
// text table, and a selector register that names which buffer is being
// edited and which is being displayed.
//
// Storage discipline is grounded on original_source/src/vm/gpu.py:
// Selector keeps the raw word it was last written with; EditBuffer and
// DisplayBuffer derive their flag from it on every access instead of
// caching two booleans that could drift from what a GPU-source read
// reports back (DESIGN.md decision 3).
type GPU struct {
	Buffers  [2][32]uint32
	Sprites  [32]uint16   // 15-bit pattern, id 0..31
	Text     [16384]uint8 // 6-bit code, id 0..16383
	Selector uint32

	Dirty bool // set by every draw instruction (draws target the edit buffer); selector writes leave it alone
}

// NewGPU returns a GPU with both buffers, the sprite/text tables, and
// the selector zeroed — matching "runtime state ... created at VM
// start" in spec §3.
func NewGPU() *GPU { return &GPU{} }

// EditBuffer returns which buffer (0 or 1) draw ops currently target.
func (g *GPU) EditBuffer() int { return int(g.Selector & 1) }

// DisplayBuffer returns which buffer (0 or 1) the host renders.
func (g *GPU) DisplayBuffer() int { return int((g.Selector >> 16) & 1) }

// ReadSelector applies spec §8's selector readback formula:
// ((W>>16)&1)<<16 | (W&1), authoritative over §4.2's looser prose.
func (g *GPU) ReadSelector() uint32 {
	return uint32(g.DisplayBuffer())<<16 | uint32(g.EditBuffer())
}

// SetSelector stores the raw 32-bit word; edit/display flags are
// derived lazily from it (see the GPU doc comment).
func (g *GPU) SetSelector(w uint32) { g.Selector = w }

func (g *GPU) editBuf() *[32]uint32 { return &g.Buffers[g.EditBuffer()] }

// DisplaySnapshot returns a copy of the buffer the host renders, for the
// display collaborator to blit without racing the CPU goroutine.
func (g *GPU) DisplaySnapshot() [32]uint32 { return g.Buffers[g.DisplayBuffer()] }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func inRange(v, lo, hi int) bool { return v >= lo && v <= hi }

// rowMask builds a mask of `width` consecutive set bits starting at
// screen column x (bit 31 = x=0, per spec §6.3), the same construction
// original_source/src/vm/gpu.py uses for DRGRD/CLRGRID.
func rowMask(x, width int) uint32 {
	if width <= 0 {
		return 0
	}
	return uint32((1<<uint(width))-1) << uint(32-x-width)
}

// --- Drawing primitives (spec §4.2) ---

// Clrgrid implements CLRGRID(x,y,w,h): clear all pixels in the rect.
type Clrgrid struct{ X, Y, W, H Operand }

func (i Clrgrid) exec(c *CPU) Outcome {
	return gpuRect(c, i.X, i.Y, i.W, i.H, i.String(), false)
}
func (i Clrgrid) String() string {
	return fmt.Sprintf("CLRGRID %s, %s, %s, %s", i.X, i.Y, i.W, i.H)
}

// Drgrd implements DRGRD(x,y,w,h): set all pixels in the rect.
type Drgrd struct{ X, Y, W, H Operand }

func (i Drgrd) exec(c *CPU) Outcome {
	return gpuRect(c, i.X, i.Y, i.W, i.H, i.String(), true)
}
func (i Drgrd) String() string {
	return fmt.Sprintf("DRGRD %s, %s, %s, %s", i.X, i.Y, i.W, i.H)
}

func gpuRect(c *CPU, xo, yo, wo, ho Operand, text string, set bool) Outcome {
	x := int(int16(uint16(xo.resolve(c))))
	y := int(int16(uint16(yo.resolve(c))))
	w := int(int16(uint16(wo.resolve(c))))
	h := int(int16(uint16(ho.resolve(c))))
	if !inRange(x, 0, 31) || !inRange(y, 0, 31) || !inRange(w, 1, 32) || !inRange(h, 1, 32) {
		return faulted(OutOfRange, c.PC, text)
	}
	buf := c.GPU.editBuf()
	for row := y; row < y+h && row < 32; row++ {
		width := w
		if x+width > 32 {
			width = 32 - x
		}
		mask := rowMask(x, width)
		if set {
			buf[row] |= mask
		} else {
			buf[row] &^= mask
		}
	}
	c.GPU.Dirty = true
	return c.advance()
}

// Drline implements DRLINE(x1,y1,x2,y2): a per-scanline span fill
// producing the same lit-pixel set as a standard Bresenham line,
// grounded on original_source/src/vm/gpu.py's _draw_line/_fill_row_range.
type Drline struct{ X1, Y1, X2, Y2 Operand }

func (i Drline) exec(c *CPU) Outcome {
	x1 := clamp(int(int16(uint16(i.X1.resolve(c)))), 0, 31)
	y1 := clamp(int(int16(uint16(i.Y1.resolve(c)))), 0, 31)
	x2 := clamp(int(int16(uint16(i.X2.resolve(c)))), 0, 31)
	y2 := clamp(int(int16(uint16(i.Y2.resolve(c)))), 0, 31)

	buf := c.GPU.editBuf()
	fillRow := func(y, xStart, xEnd int) {
		if y < 0 || y >= 32 {
			return
		}
		if xStart > xEnd {
			xStart, xEnd = xEnd, xStart
		}
		buf[y] |= rowMask(xStart, xEnd-xStart+1)
	}

	yMin, yMax := y1, y2
	xAtYMin, xAtYMax := x1, x2
	if y1 > y2 {
		yMin, yMax = y2, y1
		xAtYMin, xAtYMax = x2, x1
	}
	dx := xAtYMax - xAtYMin
	dy := yMax - yMin
	xBoundLo, xBoundHi := xAtYMin, xAtYMax
	if xBoundLo > xBoundHi {
		xBoundLo, xBoundHi = xBoundHi, xBoundLo
	}

	if dy == 0 {
		xStart, xEnd := x1, x2
		if xStart > xEnd {
			xStart, xEnd = xEnd, xStart
		}
		fillRow(yMin, xStart, xEnd)
		c.GPU.Dirty = true
		return c.advance()
	}

	for yScan := yMin; yScan <= yMax; yScan++ {
		yOffset := yScan - yMin
		xNumerator := dx * yOffset
		xPos := xAtYMin + floorDiv(xNumerator, dy)
		xNext := xAtYMin + floorDiv(xNumerator+dx, dy)

		xStart, xEnd := xPos, xNext
		if xStart > xEnd {
			xStart, xEnd = xEnd, xStart
		}
		xStart = clamp(xStart, xBoundLo, xBoundHi)
		xEnd = clamp(xEnd, xBoundLo, xBoundHi)
		xStart = clamp(xStart, 0, 31)
		xEnd = clamp(xEnd, 0, 31)
		fillRow(yScan, xStart, xEnd)
	}
	c.GPU.Dirty = true
	return c.advance()
}
func (i Drline) String() string {
	return fmt.Sprintf("DRLINE %s, %s, %s, %s", i.X1, i.Y1, i.X2, i.Y2)
}

// floorDiv is integer division rounding toward negative infinity,
// matching Python's // operator used by the line-fill algorithm this
// is grounded on.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Ldspr implements LDSPR(id, data): store data&0x7FFF in sprite slot id.
type Ldspr struct{ ID, Data Operand }

func (i Ldspr) exec(c *CPU) Outcome {
	id := int(i.ID.resolve(c))
	if !inRange(id, 0, 31) {
		return faulted(OutOfRange, c.PC, i.String())
	}
	c.GPU.Sprites[id] = uint16(i.Data.resolve(c)) & 0x7FFF
	return c.advance()
}
func (i Ldspr) String() string { return fmt.Sprintf("LDSPR %s, %s", i.ID, i.Data) }

// Drspr implements DRSPR(id, x, y): OR the 5x3 sprite pattern into the
// edit buffer at (x,y), clipped not wrapped. Bit 14 = (row0,col0);
// bit 0 = (row2,col4), per spec §4.2.
type Drspr struct{ ID, X, Y Operand }

func (i Drspr) exec(c *CPU) Outcome {
	id := int(i.ID.resolve(c))
	if !inRange(id, 0, 31) {
		return faulted(OutOfRange, c.PC, i.String())
	}
	x := int(int16(uint16(i.X.resolve(c))))
	y := int(int16(uint16(i.Y.resolve(c))))
	pattern := c.GPU.Sprites[id]
	buf := c.GPU.editBuf()
	for row := 0; row < 3; row++ {
		for col := 0; col < 5; col++ {
			bitIndex := 14 - (row*5 + col)
			if pattern&(1<<uint(bitIndex)) == 0 {
				continue
			}
			px, py := x+col, y+row
			if px >= 0 && px < 32 && py >= 0 && py < 32 {
				buf[py] |= 1 << uint(31-px)
			}
		}
	}
	c.GPU.Dirty = true
	return c.advance()
}
func (i Drspr) String() string { return fmt.Sprintf("DRSPR %s, %s, %s", i.ID, i.X, i.Y) }

// Ldtxt implements LDTXT(id, code): store code&0x3F in text slot id.
type Ldtxt struct{ ID, Code Operand }

func (i Ldtxt) exec(c *CPU) Outcome {
	id := int(i.ID.resolve(c))
	if !inRange(id, 0, 16383) {
		return faulted(OutOfRange, c.PC, i.String())
	}
	code := uint8(i.Code.resolve(c)) & 0x3F
	if code > 42 {
		return faulted(OutOfRange, c.PC, i.String())
	}
	c.GPU.Text[id] = code
	return c.advance()
}
func (i Ldtxt) String() string { return fmt.Sprintf("LDTXT %s, %s", i.ID, i.Code) }

// Drtxt implements DRTXT(id, x, y): render the 5x5 glyph for the code in
// text slot id at (x,y), clipped not wrapped.
type Drtxt struct{ ID, X, Y Operand }

func (i Drtxt) exec(c *CPU) Outcome {
	id := int(i.ID.resolve(c))
	if !inRange(id, 0, 16383) {
		return faulted(OutOfRange, c.PC, i.String())
	}
	x := int(int16(uint16(i.X.resolve(c))))
	y := int(int16(uint16(i.Y.resolve(c))))
	code := c.GPU.Text[id]
	pattern := glyphFor(code)
	buf := c.GPU.editBuf()
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			bitIndex := 24 - (row*5 + col)
			if pattern&(1<<uint(bitIndex)) == 0 {
				continue
			}
			px, py := x+col, y+row
			if px >= 0 && px < 32 && py >= 0 && py < 32 {
				buf[py] |= 1 << uint(31-px)
			}
		}
	}
	c.GPU.Dirty = true
	return c.advance()
}
func (i Drtxt) String() string { return fmt.Sprintf("DRTXT %s, %s, %s", i.ID, i.X, i.Y) }

// Scrlbfr implements SCRLBFR(offx, offy): shift the edit buffer; pixels
// shifted out are discarded, incoming pixels are 0.
type Scrlbfr struct{ OffX, OffY Operand }

func (i Scrlbfr) exec(c *CPU) Outcome {
	offx := int(int16(uint16(i.OffX.resolve(c))))
	offy := int(int16(uint16(i.OffY.resolve(c))))
	buf := c.GPU.editBuf()

	if offy != 0 {
		var next [32]uint32
		for row := 0; row < 32; row++ {
			src := row + offy
			if src >= 0 && src < 32 {
				next[row] = buf[src]
			}
		}
		*buf = next
	}
	if offx != 0 {
		for row := 0; row < 32; row++ {
			if offx > 0 {
				buf[row] <<= uint(offx)
			} else {
				buf[row] >>= uint(-offx)
			}
		}
	}
	c.GPU.Dirty = true
	return c.advance()
}
func (i Scrlbfr) String() string { return fmt.Sprintf("SCRLBFR %s, %s", i.OffX, i.OffY) }
