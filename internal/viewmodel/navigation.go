package viewmodel

import (
	"context"
	"sync"

	"github.com/tomtom215/fedsync/internal/eventbus"
)

// HeaderConfig describes the chrome NavigationViewModel's current page
// requests from the UI shell.
type HeaderConfig struct {
	Title      string
	ShowBack   bool
	ShowSearch bool
}

// NavigationViewModel owns the UI's page stack (spec.md §4.C9).
type NavigationViewModel struct {
	bus *eventbus.Bus

	CurrentPage  *Property[string]
	CanGoBack    *Property[bool]
	PageTitle    *Property[string]
	HeaderConfig *Property[HeaderConfig]

	mu    sync.Mutex
	stack []string

	sub *eventbus.Subscription
}

// NewNavigationViewModel constructs a NavigationViewModel starting at
// homePage and subscribes it to externally-requested navigation.
func NewNavigationViewModel(bus *eventbus.Bus, homePage string) *NavigationViewModel {
	vm := &NavigationViewModel{
		bus:          bus,
		CurrentPage:  NewProperty(homePage, func(a, b string) bool { return a == b }),
		CanGoBack:    NewProperty(false, func(a, b bool) bool { return a == b }),
		PageTitle:    NewProperty("", func(a, b string) bool { return a == b }),
		HeaderConfig: NewProperty(HeaderConfig{}, nil),
		stack:        []string{homePage},
	}

	vm.sub = bus.SubscribeFiltered([]eventbus.EventType{
		eventbus.NavigationLibraryNavigationRequest,
		eventbus.NavigationHomeNavigationRequest,
	}, 0)
	go vm.handleEvents(context.Background())

	return vm
}

// Close unsubscribes from the event bus. Safe to call once.
func (vm *NavigationViewModel) Close() {
	vm.sub.Close()
}

// NavigateToPage pushes page onto the stack and publishes NavigationRequested
// then NavigationCompleted.
func (vm *NavigationViewModel) NavigateToPage(ctx context.Context, page string) {
	vm.publish(ctx, eventbus.NavigationRequested, page)

	vm.mu.Lock()
	vm.stack = append(vm.stack, page)
	vm.mu.Unlock()

	vm.applyPage(page)
	vm.publishHistoryChanged(ctx)
	vm.publish(ctx, eventbus.NavigationCompleted, page)
}

// GoBack pops the stack, if more than the home page remains, and navigates
// to the page beneath it.
func (vm *NavigationViewModel) GoBack(ctx context.Context) bool {
	vm.mu.Lock()
	if len(vm.stack) <= 1 {
		vm.mu.Unlock()
		return false
	}
	vm.stack = vm.stack[:len(vm.stack)-1]
	page := vm.stack[len(vm.stack)-1]
	vm.mu.Unlock()

	vm.applyPage(page)
	vm.publishHistoryChanged(ctx)
	vm.publish(ctx, eventbus.NavigationCompleted, page)
	return true
}

// GoHome resets the stack to just the home page.
func (vm *NavigationViewModel) GoHome(ctx context.Context) {
	vm.mu.Lock()
	home := vm.stack[0]
	vm.stack = []string{home}
	vm.mu.Unlock()

	vm.applyPage(home)
	vm.publishHistoryChanged(ctx)
	vm.publish(ctx, eventbus.NavigationCompleted, home)
}

// UpdatePageTitle sets the current page's displayed title.
func (vm *NavigationViewModel) UpdatePageTitle(ctx context.Context, title string) {
	vm.PageTitle.Set(title)
	vm.publish(ctx, eventbus.NavigationPageTitleChanged, title)
}

// UpdateHeaderConfig sets the current page's header chrome configuration.
func (vm *NavigationViewModel) UpdateHeaderConfig(ctx context.Context, cfg HeaderConfig) {
	vm.HeaderConfig.Set(cfg)
	_ = vm.bus.Publish(ctx, eventbus.Event{
		Type:    eventbus.NavigationHeaderConfigChanged,
		Payload: eventbus.NavigationPayload{Title: cfg.Title},
		Source:  eventbus.EventSource{Kind: eventbus.SourceUI, Name: "navigation"},
	})
}

func (vm *NavigationViewModel) applyPage(page string) {
	vm.CurrentPage.Set(page)
	vm.mu.Lock()
	canBack := len(vm.stack) > 1
	vm.mu.Unlock()
	vm.CanGoBack.Set(canBack)
}

func (vm *NavigationViewModel) publish(ctx context.Context, t eventbus.EventType, page string) {
	_ = vm.bus.Publish(ctx, eventbus.Event{
		Type:    t,
		Payload: eventbus.NavigationPayload{Page: page},
		Source:  eventbus.EventSource{Kind: eventbus.SourceUI, Name: "navigation"},
	})
}

func (vm *NavigationViewModel) publishHistoryChanged(ctx context.Context) {
	_ = vm.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.NavigationHistoryChanged,
		Source: eventbus.EventSource{Kind: eventbus.SourceUI, Name: "navigation"},
	})
}

func (vm *NavigationViewModel) handleEvents(ctx context.Context) {
	for evt := range vm.sub.C {
		switch evt.Type {
		case eventbus.NavigationLibraryNavigationRequest, eventbus.NavigationHomeNavigationRequest:
			payload, ok := evt.Payload.(eventbus.NavigationPayload)
			if !ok || payload.Page == "" {
				continue
			}
			vm.NavigateToPage(ctx, payload.Page)
		}
	}
}
