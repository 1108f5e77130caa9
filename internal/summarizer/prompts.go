package summarizer

const canonicalPrompt = `Summarize the conversation below. Extract the key information and facts.

Conversation:
%s
Cover, in order:
1. Main topics discussed
2. Key facts and important information
3. The user's preferences, habits or traits
4. Anything else worth remembering

Be concise, write in the third person, avoid redundancy and stay objective.`

const personaPrompt = `Rewrite the factual summary below as a short first-person recollection
("I remember...") that reads naturally when mentioned in conversation.
Keep it under 100 words.

Factual summary:
%s`

const importancePrompt = `Rate how important the memory below is, as a number between 0 and 1.

Memory:
%s

Scale:
- 0.0-0.2: small talk or irrelevant
- 0.2-0.4: general information, passing topic
- 0.4-0.6: useful information, personal preference
- 0.6-0.8: key fact, strong preference
- 0.8-1.0: core information, defining trait

Reply with the number only.`
