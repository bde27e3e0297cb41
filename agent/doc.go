// Package agent contains the concrete participants of a collaboration step
// and the helpers the step executor drives them with:
//
//  1. Agent construction from scenario specs (New, NewCatalogue)
//  2. Language model backed agents with tools and token budgeting (LLMAgent)
//  3. Placeholders for live humans (HumanAgent)
//  4. Producer/critic review loops (CriticLoop)
//  5. Parsing of coordinator instructions (ParseInstruction)
//
// Agents own exactly one memory.Memory. Short-term memory is the working
// context handed to the model; End condenses it into long-term memory and
// persists the record through the configured core.RecordStore.
package agent
