package mutator

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/drpcorg/ptree/path"
	"github.com/drpcorg/ptree/schema"
)

// Compiled operations are cached by (verb, schema, normalized path), so a
// client hammering the same path pays resolution once.

type compiled struct {
	get    GetFn
	set    SetFn
	add    AddFn
	remove RemoveFn
	node   *schema.Node
}

var cache, _ = lru.New[string, *compiled](4096)

func cacheKey(sch *schema.Schema, verb, pathText string) (string, bool) {
	norm, err := path.Normalize(pathText)
	if err != nil {
		return "", false
	}
	return verb + "|" + sch.Name + "|" + norm, true
}

func cached(sch *schema.Schema, verb, pathText string) (*compiled, bool) {
	key, ok := cacheKey(sch, verb, pathText)
	if !ok {
		return nil, false
	}
	return cache.Get(key)
}

func remember(sch *schema.Schema, verb, pathText string, c *compiled) {
	if key, ok := cacheKey(sch, verb, pathText); ok {
		cache.Add(key, c)
	}
}
