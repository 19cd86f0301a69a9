package viewmodel

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/fedsync/internal/eventbus"
)

func TestNavigateToPageUpdatesStackAndCanGoBack(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	vm := NewNavigationViewModel(bus, "home")
	defer vm.Close()
	ctx := context.Background()

	if vm.CanGoBack.Get() {
		t.Fatal("expected CanGoBack=false at home")
	}

	vm.NavigateToPage(ctx, "library")
	if vm.CurrentPage.Get() != "library" {
		t.Fatalf("got %q, want library", vm.CurrentPage.Get())
	}
	if !vm.CanGoBack.Get() {
		t.Fatal("expected CanGoBack=true after navigating away from home")
	}
}

func TestGoBackReturnsToPreviousPage(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	vm := NewNavigationViewModel(bus, "home")
	defer vm.Close()
	ctx := context.Background()

	vm.NavigateToPage(ctx, "library")
	vm.NavigateToPage(ctx, "details")

	if !vm.GoBack(ctx) {
		t.Fatal("expected GoBack to succeed")
	}
	if vm.CurrentPage.Get() != "library" {
		t.Fatalf("got %q, want library", vm.CurrentPage.Get())
	}

	if !vm.GoBack(ctx) {
		t.Fatal("expected second GoBack to succeed")
	}
	if vm.CurrentPage.Get() != "home" {
		t.Fatalf("got %q, want home", vm.CurrentPage.Get())
	}
	if vm.GoBack(ctx) {
		t.Fatal("expected GoBack from home to fail")
	}
}

func TestGoHomeResetsStack(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	vm := NewNavigationViewModel(bus, "home")
	defer vm.Close()
	ctx := context.Background()

	vm.NavigateToPage(ctx, "library")
	vm.NavigateToPage(ctx, "details")
	vm.GoHome(ctx)

	if vm.CurrentPage.Get() != "home" {
		t.Fatalf("got %q, want home", vm.CurrentPage.Get())
	}
	if vm.CanGoBack.Get() {
		t.Fatal("expected CanGoBack=false after GoHome")
	}
}

func TestLibraryNavigationRequestedNavigatesThere(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	vm := NewNavigationViewModel(bus, "home")
	defer vm.Close()
	ctx := context.Background()

	sub := vm.CurrentPage.Subscribe(4)
	defer sub.Close()

	_ = bus.Publish(ctx, eventbus.Event{
		Type:    eventbus.NavigationLibraryNavigationRequest,
		Payload: eventbus.NavigationPayload{Page: "library:movies"},
	})

	select {
	case page := <-sub.C:
		if page != "library:movies" {
			t.Fatalf("got %q, want library:movies", page)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for navigation")
	}
}
