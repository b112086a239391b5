//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an OpenAI-compatible model implementation.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ensembleworks/ensemble/log"
	"github.com/ensembleworks/ensemble/model"
	"github.com/ensembleworks/ensemble/tool"
)

const functionToolType = "function"

// Model implements the model.Model interface for OpenAI-compatible APIs.
type Model struct {
	client            openai.Client
	name              string
	channelBufferSize int
}

// New creates a new OpenAI-like model.
func New(name string, opts ...Option) *Model {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}

	var clientOpts []openaiopt.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	clientOpts = append(clientOpts, o.OpenAIOptions...)

	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.ChannelBufferSize,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.name,
		Provider: "openai",
	}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)
	chatRequest := m.buildChatRequest(request)

	go func() {
		defer close(responseChan)
		if request.Stream {
			m.handleStreamingResponse(ctx, chatRequest, responseChan)
		} else {
			m.handleNonStreamingResponse(ctx, chatRequest, responseChan)
		}
	}()

	return responseChan, nil
}

// buildChatRequest converts our Request to OpenAI request params.
func (m *Model) buildChatRequest(request *model.Request) openai.ChatCompletionNewParams {
	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
		Tools:    convertTools(request.Tools),
	}

	// MaxTokens is deprecated and not compatible with o-series models.
	// Use MaxCompletionTokens instead.
	if request.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*request.MaxTokens))
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}
	if request.TopP != nil {
		chatRequest.TopP = openai.Float(*request.TopP)
	}
	if len(request.Stop) > 0 {
		// Use the first stop string for simplicity.
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfString: openai.String(request.Stop[0]),
		}
	}
	if request.PresencePenalty != nil {
		chatRequest.PresencePenalty = openai.Float(*request.PresencePenalty)
	}
	if request.FrequencyPenalty != nil {
		chatRequest.FrequencyPenalty = openai.Float(*request.FrequencyPenalty)
	}
	if request.Stream {
		chatRequest.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}
	return chatRequest
}

// convertMessages converts our Message format to OpenAI's format.
func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		case model.RoleAssistant:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCalls: convertToolCalls(msg.ToolCalls),
				},
			}
		case model.RoleTool:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCallID: msg.ToolID,
				},
			}
		default:
			// Default to user message if role is unknown.
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		}
	}
	return result
}

func convertToolCalls(toolCalls []model.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	var result []openai.ChatCompletionMessageToolCallParam
	for _, toolCall := range toolCalls {
		result = append(result, openai.ChatCompletionMessageToolCallParam{
			ID: toolCall.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      toolCall.Function.Name,
				Arguments: string(toolCall.Function.Arguments),
			},
		})
	}
	return result
}

func convertTools(tools map[string]tool.Tool) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, t := range tools {
		declaration := t.Declaration()
		// Round-trip the schema through JSON to map to OpenAI's format.
		schemaBytes, err := json.Marshal(declaration.InputSchema)
		if err != nil {
			log.Errorf("failed to marshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		var parameters shared.FunctionParameters
		if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
			log.Errorf("failed to unmarshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        declaration.Name,
				Description: openai.String(declaration.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}

// handleStreamingResponse handles streaming chat completion responses.
func (m *Model) handleStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, chatRequest)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		acc.AddChunk(chunk)

		// Suppress chunks that carry no visible delta; tool calls are
		// surfaced only in the final aggregated response.
		delta := chunk.Choices[0].Delta
		if delta.Content == "" && chunk.Choices[0].FinishReason == "" {
			continue
		}

		response := createPartialResponse(chunk)
		select {
		case responseChan <- response:
		case <-ctx.Done():
			return
		}
	}

	m.sendFinalResponse(ctx, stream.Err(), acc, responseChan)
}

// createPartialResponse converts a streaming chunk to a partial response.
func createPartialResponse(chunk openai.ChatCompletionChunk) *model.Response {
	response := &model.Response{
		Object:    model.ObjectTypeChatCompletionChunk,
		ID:        chunk.ID,
		Created:   chunk.Created,
		Model:     chunk.Model,
		Timestamp: time.Now(),
		IsPartial: true,
		Choices:   make([]model.Choice, 1),
	}
	response.Choices[0] = model.Choice{
		Index: int(chunk.Choices[0].Index),
		Delta: model.Message{
			Role:    model.RoleAssistant,
			Content: chunk.Choices[0].Delta.Content,
		},
	}
	if chunk.Choices[0].FinishReason != "" {
		finishReason := chunk.Choices[0].FinishReason
		response.Choices[0].FinishReason = &finishReason
	}
	return response
}

// sendFinalResponse sends the final aggregated response for a stream.
func (m *Model) sendFinalResponse(
	ctx context.Context,
	streamErr error,
	acc openai.ChatCompletionAccumulator,
	responseChan chan<- *model.Response,
) {
	if streamErr != nil {
		errorResponse := &model.Response{
			Error: &model.ResponseError{
				Message: streamErr.Error(),
				Type:    model.ErrorTypeAPIError,
			},
			Timestamp: time.Now(),
			Done:      true,
		}
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	usage := completionUsageToModelUsage(acc.Usage)
	finalResponse := &model.Response{
		Object:    model.ObjectTypeChatCompletion,
		ID:        acc.ID,
		Created:   acc.Created,
		Model:     acc.Model,
		Choices:   make([]model.Choice, len(acc.Choices)),
		Usage:     &usage,
		Timestamp: time.Now(),
		Done:      true,
	}
	for i, choice := range acc.Choices {
		finalResponse.Choices[i] = model.Choice{
			Index: int(choice.Index),
			Message: model.Message{
				Role:      model.RoleAssistant,
				Content:   choice.Message.Content,
				ToolCalls: accumulatedToolCalls(choice.Message.ToolCalls),
			},
		}
		if choice.FinishReason != "" {
			finishReason := choice.FinishReason
			finalResponse.Choices[i].FinishReason = &finishReason
		}
	}

	select {
	case responseChan <- finalResponse:
	case <-ctx.Done():
	}
}

// accumulatedToolCalls converts accumulated tool calls, synthesizing IDs
// for providers that omit them so tool responses can be paired.
func accumulatedToolCalls(calls []openai.ChatCompletionMessageToolCall) []model.ToolCall {
	var result []model.ToolCall
	for i, toolCall := range calls {
		if toolCall.Function.Name == "" && toolCall.ID == "" {
			continue
		}
		id := toolCall.ID
		if id == "" {
			id = fmt.Sprintf("auto_call_%d", i)
		}
		index := i
		result = append(result, model.ToolCall{
			Index: &index,
			ID:    id,
			Type:  functionToolType,
			Function: model.FunctionCall{
				Name:      toolCall.Function.Name,
				Arguments: []byte(toolCall.Function.Arguments),
			},
		})
	}
	return result
}

func completionUsageToModelUsage(usage openai.CompletionUsage) model.Usage {
	return model.Usage{
		PromptTokens:     int(usage.PromptTokens),
		CompletionTokens: int(usage.CompletionTokens),
		TotalTokens:      int(usage.TotalTokens),
	}
}

// handleNonStreamingResponse handles non-streaming chat completion responses.
func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
) {
	chatCompletion, err := m.client.Chat.Completions.New(ctx, chatRequest)
	if err != nil {
		errorResponse := &model.Response{
			Error: &model.ResponseError{
				Message: err.Error(),
				Type:    model.ErrorTypeAPIError,
			},
			Timestamp: time.Now(),
			Done:      true,
		}
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	usage := completionUsageToModelUsage(chatCompletion.Usage)
	response := &model.Response{
		Object:    model.ObjectTypeChatCompletion,
		ID:        chatCompletion.ID,
		Created:   chatCompletion.Created,
		Model:     chatCompletion.Model,
		Choices:   make([]model.Choice, len(chatCompletion.Choices)),
		Usage:     &usage,
		Timestamp: time.Now(),
		Done:      true,
	}
	for i, choice := range chatCompletion.Choices {
		response.Choices[i] = model.Choice{
			Index: int(choice.Index),
			Message: model.Message{
				Role:      model.RoleAssistant,
				Content:   choice.Message.Content,
				ToolCalls: accumulatedToolCalls(choice.Message.ToolCalls),
			},
		}
		if choice.FinishReason != "" {
			finishReason := choice.FinishReason
			response.Choices[i].FinishReason = &finishReason
		}
	}

	select {
	case responseChan <- response:
	case <-ctx.Done():
	}
}
