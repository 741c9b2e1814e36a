package list

import "testing"

func namesForward(l *List) []string {
	var out []string
	l.ForwardEach(func(e *Entry) bool {
		out = append(out, e.Owner().(string))
		return true
	})
	return out
}

func TestPushFrontOrder(t *testing.T) {
	l := New()
	a, b, c := &Entry{}, &Entry{}, &Entry{}
	a.SetOwner("a")
	b.SetOwner("b")
	c.SetOwner("c")
	l.PushFront(a)
	l.PushFront(b)
	l.PushFront(c)

	got := namesForward(l)
	want := []string{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPushBackAndRemove(t *testing.T) {
	l := New()
	a, b, c := &Entry{}, &Entry{}, &Entry{}
	a.SetOwner("a")
	b.SetOwner("b")
	c.SetOwner("c")
	l.PushBack(a)
	l.PushBack(b)
	l.PushBack(c)

	Remove(b)
	got := namesForward(l)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("got %v, want [a c]", got)
	}
	if l.Front().Owner().(string) != "a" || l.Back().Owner().(string) != "c" {
		t.Fatal("front/back mismatch after removal")
	}
}

func TestEmptyList(t *testing.T) {
	l := New()
	if !l.Empty() {
		t.Fatal("new list should be empty")
	}
	if l.Front() != nil || l.Back() != nil {
		t.Fatal("Front/Back on empty list should be nil")
	}
}
