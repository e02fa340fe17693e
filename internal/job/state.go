package job

import (
	"encoding/json"
	"fmt"

	"github.com/aescanero/dago-libs/pkg/domain"
)

// convertToGraphState converts state.State to domain.GraphState
func convertToGraphState(graphID string, stateData map[string]interface{}) (*domain.GraphState, error) {
	// Marshal the state data to JSON then unmarshal to GraphState
	data, err := json.Marshal(stateData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	var graphState domain.GraphState
	if err := json.Unmarshal(data, &graphState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to GraphState: %w", err)
	}

	// Ensure GraphID is set
	if graphState.GraphID == "" {
		graphState.GraphID = graphID
	}

	return &graphState, nil
}

// stateLocals exposes the graph state to templates as ${state.*}
func stateLocals(state *domain.GraphState) map[string]interface{} {
	return map[string]interface{}{
		"graph_id":    state.GraphID,
		"status":      string(state.Status),
		"inputs":      state.Inputs,
		"node_states": convertNodeStates(state.NodeStates),
	}
}

// convertNodeStates converts node states to a template-friendly format
func convertNodeStates(nodeStates map[string]*domain.NodeState) map[string]interface{} {
	result := make(map[string]interface{})
	for nodeID, nodeState := range nodeStates {
		if nodeState == nil {
			continue
		}
		result[nodeID] = map[string]interface{}{
			"status":       string(nodeState.Status),
			"output":       nodeState.Output,
			"error":        nodeState.Error,
			"started_at":   nodeState.StartedAt,
			"completed_at": nodeState.CompletedAt,
		}
	}
	return result
}
