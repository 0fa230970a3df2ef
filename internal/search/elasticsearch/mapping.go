package elasticsearch

// DefaultIndexName is the index used for product documents.
const DefaultIndexName = "adexify_products"

// indexMapping keeps category a keyword so filters are exact, and name
// doubles as a keyword for sorting.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "folding": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":          { "type": "keyword" },
      "name":        { "type": "text", "analyzer": "folding", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "slug":        { "type": "text", "analyzer": "folding" },
      "description": { "type": "text", "analyzer": "folding" },
      "category":    { "type": "keyword", "normalizer": "lowercase" },
      "price":       { "type": "long" },
      "stock":       { "type": "integer" },
      "in_stock":    { "type": "boolean" },
      "images":      { "type": "keyword", "index": false },
      "created_at":  { "type": "date" }
    }
  }
}`
