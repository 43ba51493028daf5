// Package graph mirrors the detected concept graph into Neo4j so graph-native
// consumers (visual map, traversal queries) can read it without going
// through the relational store.
package graph

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

// Writer mirrors relationships for one document.
type Writer interface {
	MirrorResult(ctx context.Context, res *domain.ProcessingResult) error
}

type neo4jWriter struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

// NewFromEnv reads NEO4J_URI / NEO4J_USER / NEO4J_PASSWORD / NEO4J_DATABASE.
// Returns (nil, nil) when NEO4J_URI is unset: the graph mirror is optional.
func NewFromEnv(log *logger.Logger) (Writer, error) {
	if log == nil {
		return nil, fmt.Errorf("graph: logger required")
	}
	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, nil
	}
	user := strings.TrimSpace(os.Getenv("NEO4J_USER"))
	if user == "" {
		user = "neo4j"
	}
	password := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD"))
	database := strings.TrimSpace(os.Getenv("NEO4J_DATABASE"))

	timeoutSec := 10
	if v := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: init driver: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: verify connectivity: %w", err)
	}

	return &neo4jWriter{
		driver:   driver,
		database: database,
		log:      log.With("client", "Neo4jGraphWriter"),
	}, nil
}

func (w *neo4jWriter) MirrorResult(ctx context.Context, res *domain.ProcessingResult) error {
	if res == nil {
		return nil
	}
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: w.database})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Replace the document's subgraph wholesale; results are immutable
		// per run, so there is nothing to merge with.
		if _, err := tx.Run(ctx,
			`MATCH (c:Concept {document_id: $doc}) DETACH DELETE c`,
			map[string]any{"doc": res.DocumentID},
		); err != nil {
			return nil, err
		}

		for _, c := range res.Concepts {
			if _, err := tx.Run(ctx,
				`CREATE (:Concept {
					id: $id, document_id: $doc, term: $term,
					definition: $definition, confidence: $confidence,
					structure_id: $structure_id
				})`,
				map[string]any{
					"id":           c.ID,
					"doc":          res.DocumentID,
					"term":         c.Term,
					"definition":   c.Definition,
					"confidence":   c.Confidence,
					"structure_id": c.StructureID,
				},
			); err != nil {
				return nil, err
			}
		}

		for _, r := range res.Relationships {
			if _, err := tx.Run(ctx,
				`MATCH (a:Concept {id: $source, document_id: $doc}),
				       (b:Concept {id: $target, document_id: $doc})
				 CREATE (a)-[:RELATES_TO {
					type: $type, strength: $strength,
					similarity: $similarity, explanation: $explanation
				 }]->(b)`,
				map[string]any{
					"doc":         res.DocumentID,
					"source":      r.SourceConceptID,
					"target":      r.TargetConceptID,
					"type":        string(r.Type),
					"strength":    r.Strength,
					"similarity":  r.SimilarityScore,
					"explanation": r.Explanation,
				},
			); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: mirror document %s: %w", res.DocumentID, err)
	}
	w.log.Debug("graph mirrored",
		"document_id", res.DocumentID,
		"concepts", len(res.Concepts),
		"relationships", len(res.Relationships),
	)
	return nil
}

// Close releases the underlying driver.
func (w *neo4jWriter) Close(ctx context.Context) error {
	if w == nil || w.driver == nil {
		return nil
	}
	return w.driver.Close(ctx)
}
