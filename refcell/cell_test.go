package refcell

import "testing"

func TestCellBorrowMutRequiresFree(t *testing.T) {
	var c Cell[int]
	p, ok := c.TryBorrowMut()
	if !ok {
		t.Fatal("TryBorrowMut on free cell failed")
	}
	*p = 42

	if _, ok := c.TryBorrowMut(); ok {
		t.Fatal("TryBorrowMut succeeded while already mutably borrowed")
	}
	if _, ok := c.TryBorrow(); ok {
		t.Fatal("TryBorrow succeeded while mutably borrowed")
	}
}

func TestCellPromoteOnlyWhenSole(t *testing.T) {
	var c Cell[string]
	c.TryBorrowMut()
	c.ReleaseMut()

	r1, ok := c.TryBorrow()
	if !ok {
		t.Fatal("TryBorrow on free cell failed")
	}
	*r1 = "a"

	r2, ok := c.TryBorrow()
	if !ok {
		t.Fatal("second TryBorrow failed")
	}
	if _, ok := c.Promote(); ok {
		t.Fatal("Promote succeeded with two outstanding borrows")
	}
	c.Release()
	_ = r2
	if _, ok := c.Promote(); !ok {
		t.Fatal("Promote failed with exactly one outstanding borrow")
	}
	c.Downgrade()
	c.Release()
	if c.Count() != 0 {
		t.Fatalf("count = %d, want 0", c.Count())
	}
}
