package graph

import (
	"sort"

	"golang.org/x/exp/maps"

	"github.com/drpcorg/ptree/action"
)

// Diff computes the ordered action list that turns old into new on a
// follower. Order matters: links detach before their apps stop, and apps
// start before their links attach. Within a group, names are sorted so
// the stream is deterministic.
func Diff(old, new *Graph) []action.Action {
	var acts []action.Action

	links := maps.Keys(old.Links)
	sort.Strings(links)
	for _, l := range links {
		if !new.Links[l] {
			acts = append(acts, action.Action{Verb: action.DisconnectLink, Link: l})
		}
	}

	apps := maps.Keys(old.Apps)
	sort.Strings(apps)
	for _, name := range apps {
		// a changed kind is a different app entirely: stop, then start
		if app, ok := new.Apps[name]; !ok || app.Kind != old.Apps[name].Kind {
			acts = append(acts, action.Action{Verb: action.RemoveApp, Name: name})
		}
	}

	apps = maps.Keys(new.Apps)
	sort.Strings(apps)
	for _, name := range apps {
		app := new.Apps[name]
		if oldApp, ok := old.Apps[name]; !ok || oldApp.Kind != app.Kind {
			acts = append(acts, action.Action{
				Verb: action.AddApp, Name: name, Kind: app.Kind, Config: app.Config,
			})
		}
	}

	for _, name := range apps {
		app := new.Apps[name]
		if oldApp, ok := old.Apps[name]; ok && oldApp.Kind == app.Kind && oldApp.Config != app.Config {
			acts = append(acts, action.Action{
				Verb: action.ReconfigApp, Name: name, Kind: app.Kind, Config: app.Config,
			})
		}
	}

	links = maps.Keys(new.Links)
	sort.Strings(links)
	for _, l := range links {
		if !old.Links[l] {
			acts = append(acts, action.Action{Verb: action.ConnectLink, Link: l})
		}
	}

	return acts
}
